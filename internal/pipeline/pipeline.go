package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/tavily"
)

// ErrInvalidWebsite is returned when a run is requested without a usable
// website.
var ErrInvalidWebsite = errors.New("pipeline: website is required")

// RunRequest triggers one intelligence run.
type RunRequest struct {
	Website      string `json:"website" validate:"required,max=253"`
	BusinessName string `json:"business_name,omitempty" validate:"max=200"`
	City         string `json:"city,omitempty" validate:"max=120"`
	RequestedBy  string `json:"requested_by" validate:"max=120"`
}

// RunAck acknowledges a started run. The entry transition is already
// persisted when it is returned.
type RunAck struct {
	RunID     string                   `json:"run_id"`
	Website   string                   `json:"website"`
	Status    model.IntelligenceStatus `json:"intelligence_status"`
	StartedAt time.Time                `json:"started_at"`
}

// Options tunes the external calls. ResearchTimeout bounds the search
// including its retries.
type Options struct {
	ResearchTimeout time.Duration
	ResearchRetry   resilience.Policy
	AnalysisTimeout time.Duration
	SearchDepth     string
	MaxResults      int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOptions sets call timeouts and search parameters.
func WithOptions(o Options) Option {
	return func(p *Pipeline) { p.opts = o }
}

// WithPrompts overrides the analysis instructions.
func WithPrompts(pr *Prompts) Option {
	return func(p *Pipeline) {
		if pr != nil {
			p.prompts = pr
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunIDs overrides run id generation, for tests.
func WithRunIDs(next func() string) Option {
	return func(p *Pipeline) { p.newRunID = next }
}

// Pipeline is the intelligence orchestrator. It moves one prospect through
// researching, generating and complete (or error), writing the status before
// each stage does its work. Every write after the entry transition is
// conditional on the run id, so a re-triggered run supersedes an older one
// still in flight and the older one stops at its next write.
type Pipeline struct {
	store      store.Store
	researcher tavily.Client
	analyzer   Analyzer
	prompts    *Prompts
	opts       Options

	now      func() time.Time
	newRunID func() string

	wg sync.WaitGroup
}

// New creates a Pipeline. researcher may be nil, in which case research is
// skipped on every run.
func New(st store.Store, researcher tavily.Client, analyzer Analyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		researcher: researcher,
		analyzer:   analyzer,
		prompts:    DefaultPrompts(),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start persists the entry transition and runs the remaining stages in the
// background. The background run is detached from ctx: once acknowledged it
// runs to complete or error.
func (p *Pipeline) Start(ctx context.Context, req RunRequest) (*RunAck, error) {
	prospect, ack, err := p.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.execute(context.WithoutCancel(ctx), prospect, ack.RunID)
	}()
	return ack, nil
}

// Run executes a whole run in the caller's goroutine and returns the record
// as persisted afterwards. The returned error is the run's fatal error, if
// any; the record is still returned in that case.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*model.Prospect, error) {
	prospect, ack, err := p.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	runErr := p.execute(ctx, prospect, ack.RunID)

	latest, err := p.store.GetProspect(ctx, ack.Website)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reload prospect")
	}
	return latest, runErr
}

// Wait blocks until every background run started by Start has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// begin validates the request, creates unknown prospects and persists the
// entry transition. The returned prospect is the record as it was before
// this run.
func (p *Pipeline) begin(ctx context.Context, req RunRequest) (*model.Prospect, *RunAck, error) {
	website := model.NormalizeWebsite(req.Website)
	if website == "" {
		return nil, nil, ErrInvalidWebsite
	}

	prospect, err := p.store.GetProspect(ctx, website)
	if errors.Is(err, store.ErrNotFound) {
		prospect, err = p.store.CreateProspect(ctx, model.Prospect{
			Website:      website,
			BusinessName: strings.TrimSpace(req.BusinessName),
			City:         strings.TrimSpace(req.City),
			Status:       model.StatusIdle,
		})
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: load prospect %s", website)
	}

	// Request context fills in what the record lacks, for this run only.
	if prospect.BusinessName == "" {
		prospect.BusinessName = strings.TrimSpace(req.BusinessName)
	}
	if prospect.City == "" {
		prospect.City = strings.TrimSpace(req.City)
	}

	runID := p.newRunID()
	startedAt := p.now().UTC()
	if err := p.store.BeginRun(ctx, website, runID, startedAt); err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: begin run %s", website)
	}
	runsStarted.Inc()

	if err := p.store.CreateRun(ctx, model.IntelligenceRun{
		ID:          runID,
		Website:     website,
		RequestedBy: req.RequestedBy,
		Status:      model.StatusResearching,
		StartedAt:   startedAt,
	}); err != nil {
		zap.L().Warn("pipeline: failed to record run", zap.String("website", website), zap.Error(err))
	}

	return prospect, &RunAck{
		RunID:     runID,
		Website:   website,
		Status:    model.StatusResearching,
		StartedAt: startedAt,
	}, nil
}

// execute runs the stages after the entry transition. It returns the fatal
// error that ended the run, or nil when the run completed or was superseded.
func (p *Pipeline) execute(ctx context.Context, prospect *model.Prospect, runID string) (runErr error) {
	log := zap.L().With(zap.String("website", prospect.Website), zap.String("run_id", runID))
	start := p.now()
	log.Info("pipeline: run started")

	defer func() {
		if r := recover(); r != nil {
			runErr = eris.Errorf("pipeline: panic during run: %v", r)
			p.fail(ctx, log, prospect.Website, runID, runErr)
		}
	}()

	// researching: cheap pass over text already on the record, then research.
	var existing model.Contacts
	if prospect.Contacts.Empty() {
		existing = ExtractContacts(model.Deref(prospect.AIMarkdown) + "\n" + string(prospect.ResearchData))
	}

	research := p.research(ctx, log, prospect)
	var researchData []byte
	if research != nil {
		researchData = research.Raw
	}
	if err := p.store.SaveResearch(ctx, prospect.Website, runID, researchData); err != nil {
		return p.stop(ctx, log, prospect.Website, runID, eris.Wrap(err, "pipeline: save research"))
	}

	// generating: research-text candidates first, then the model call.
	if err := p.store.Transition(ctx, prospect.Website, runID, model.StatusResearching, model.StatusGenerating); err != nil {
		return p.stop(ctx, log, prospect.Website, runID, eris.Wrap(err, "pipeline: enter generating"))
	}
	fromResearch := ExtractContacts(research.Text())

	analysis, err := p.analyze(ctx, log, prospect, research)
	if err != nil {
		return p.stop(ctx, log, prospect.Website, runID, err)
	}

	// complete: parse, merge and persist in one write. The regex pass over
	// the raw model output ranks below the parsed contact block.
	report := ParseAnalysis(analysis.Text)
	fromModel := ExtractContacts(analysis.Text)
	contacts := MergeContacts(fromResearch, existing, report.Contacts, fromModel)
	if err := p.store.CompleteRun(ctx, prospect.Website, runID, report.Result(contacts)); err != nil {
		return p.stop(ctx, log, prospect.Website, runID, eris.Wrap(err, "pipeline: complete run"))
	}

	runsFinished.WithLabelValues(string(model.StatusComplete)).Inc()
	p.finishAudit(ctx, log, runID, model.StatusComplete, "")
	log.Info("pipeline: run complete",
		zap.String("grade", string(report.Grade)),
		zap.Bool("music_focus", report.MusicFocus),
		zap.Int64("duration_ms", p.now().Sub(start).Milliseconds()),
	)
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, log *zap.Logger, prospect *model.Prospect, research *tavily.SearchResponse) (*AnalysisResult, error) {
	if p.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AnalysisTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.analyzer.Analyze(ctx, AnalysisInput{
		System:   p.prompts.System,
		User:     BuildUserMessage(prospect, research),
		ImageURL: model.Deref(prospect.ScreenshotURL),
	})
	stageDuration.WithLabelValues("analysis").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: analysis")
	}

	log.Info("pipeline: analysis complete",
		zap.String("model", res.Model),
		zap.Int64("input_tokens", res.InputTokens),
		zap.Int64("output_tokens", res.OutputTokens),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

// stop ends a run. A stale-run rejection means a newer run owns the record,
// so nothing more is written for this one; any other error is fatal.
func (p *Pipeline) stop(ctx context.Context, log *zap.Logger, website, runID string, err error) error {
	if errors.Is(err, store.ErrStaleRun) {
		runsFinished.WithLabelValues(outcomeStale).Inc()
		p.finishAudit(ctx, log, runID, model.StatusError, "superseded by a newer run")
		log.Info("pipeline: run superseded, abandoning")
		return nil
	}
	p.fail(ctx, log, website, runID, err)
	return err
}

// fail is the best-effort write of the error status.
func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, website, runID string, cause error) {
	log.Error("pipeline: run failed", zap.Error(cause))
	ctx = context.WithoutCancel(ctx)
	runsFinished.WithLabelValues(string(model.StatusError)).Inc()

	if err := p.store.FailRun(ctx, website, runID); err != nil && !errors.Is(err, store.ErrStaleRun) {
		log.Warn("pipeline: failed to persist error status", zap.Error(err))
	}
	p.finishAudit(ctx, log, runID, model.StatusError, cause.Error())
}

func (p *Pipeline) finishAudit(ctx context.Context, log *zap.Logger, runID string, status model.IntelligenceStatus, msg string) {
	if err := p.store.FinishRun(ctx, runID, status, msg); err != nil {
		log.Warn("pipeline: failed to finish run record", zap.Error(err))
	}
}
