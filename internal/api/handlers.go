package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/store"
)

const (
	maxListLimit = 500
	maxBodyBytes = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger starts a run and answers 202 once the entry transition is
// persisted.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = r.Header.Get("X-Requested-By")
	}

	ack, err := s.runner.Start(r.Context(), req)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, ack)
}

// handleGet is the poll endpoint.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	website, ok := websiteParam(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetProspect(r.Context(), website)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.ProspectFilter

	if v := q.Get("status"); v != "" {
		st := model.IntelligenceStatus(v)
		if !st.Valid() {
			respondError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(v))
			return
		}
		filter.Status = st
	}
	if v := q.Get("grade"); v != "" {
		g, ok := model.ParseGrade(v)
		if !ok {
			respondError(w, http.StatusBadRequest, "grade must be one of A, B, C, D, F")
			return
		}
		filter.Grade = g
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", maxListLimit); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset", -1); !ok {
		return
	}

	prospects, err := s.store.ListProspects(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if prospects == nil {
		prospects = []model.Prospect{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"prospects": prospects, "count": len(prospects)})
}

// patchRequest is the CRM editor payload. Blank contact values are ignored:
// an editor cannot clear a contact field through this endpoint.
type patchRequest struct {
	BusinessName *string `json:"business_name" validate:"omitempty,max=200"`
	City         *string `json:"city" validate:"omitempty,max=120"`
	Phone        *string `json:"phone" validate:"omitempty,max=40"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Facebook     *string `json:"facebook_page" validate:"omitempty,max=300"`
	Instagram    *string `json:"instagram_page" validate:"omitempty,max=300"`
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	website, ok := websiteParam(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.store.UpdateProspect(r.Context(), website, model.ProspectUpdate{
		BusinessName: req.BusinessName,
		City:         req.City,
		Contacts: model.Contacts{
			Phone:     req.Phone,
			Email:     req.Email,
			Facebook:  req.Facebook,
			Instagram: req.Instagram,
		},
	})
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	website, ok := websiteParam(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit", maxListLimit)
	if !ok {
		return
	}

	if _, err := s.store.GetProspect(r.Context(), website); err != nil {
		respondStoreError(w, r, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), website, limit)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.IntelligenceRun{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// decode reads a JSON body and validates it, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid request"
}

func websiteParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	website := model.NormalizeWebsite(chi.URLParam(r, "website"))
	if website == "" {
		respondError(w, http.StatusBadRequest, "website is required")
		return "", false
	}
	return website, true
}

// intParam parses an optional non-negative integer query value. upper < 0
// means unbounded.
func intParam(w http.ResponseWriter, raw, name string, upper int) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (upper >= 0 && n > upper) {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
