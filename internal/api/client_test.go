package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/poller"
	"github.com/sells-group/prospector/internal/store"
)

// cannedAnalyzer returns a fixed report after an optional delay.
type cannedAnalyzer struct {
	text  string
	delay time.Duration
}

func (a cannedAnalyzer) Analyze(ctx context.Context, _ pipeline.AnalysisInput) (*pipeline.AnalysisResult, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &pipeline.AnalysisResult{Text: a.text}, nil
}

func TestClient_TriggerAndPollToCompletion(t *testing.T) {
	st := newTestStore(t)
	p := pipeline.New(st, nil, cannedAnalyzer{
		text:  "Acme sells guitars.\nIcebreakers\n- Love the vintage wall.\nGrade: A\nReasoning: Big shop.\nMusic Focus: yes",
		delay: 30 * time.Millisecond,
	})
	srv := httptest.NewServer(NewServer(st, p, Options{}).Router())
	defer srv.Close()
	defer p.Wait()

	client := NewClient(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []model.IntelligenceStatus
	sess := poller.New(client, 10*time.Millisecond).NewSession("acmemusic.com", func(u poller.Update) {
		seen = append(seen, u.Status)
	})
	defer sess.Stop()

	ack, err := client.Trigger(ctx, pipeline.RunRequest{Website: "acmemusic.com", RequestedBy: "test"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusResearching, ack.Status)
	require.NotEmpty(t, ack.RunID)

	sess.Start(ctx, ack.RunID)
	final, err := sess.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.StatusComplete, final.Status)
	assert.Equal(t, ack.RunID, final.RunID)
	require.NotNil(t, final.AIGrade)
	assert.Equal(t, model.GradeA, *final.AIGrade)
	assert.Equal(t, "Love the vintage wall.", *final.Icebreakers)
	require.NotEmpty(t, seen)
	assert.Equal(t, model.StatusResearching, seen[0])
	assert.Equal(t, model.StatusComplete, seen[len(seen)-1])
}

func TestClient_FetchNotFound(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestStore(t), new(mockRunner), Options{}).Router())
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", nil).FetchProspect(context.Background(), "unknown.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusTooManyRequests, "slow down")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Trigger(context.Background(), pipeline.RunRequest{Website: "acmemusic.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429: slow down")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, &http.Client{Timeout: time.Second}).FetchProspect(context.Background(), "acmemusic.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api client: GET /prospects/acmemusic.com")
}
