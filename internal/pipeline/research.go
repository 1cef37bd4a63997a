package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/pkg/tavily"
)

// researchIntent is appended to every query to steer results toward
// commercial and contact pages.
const researchIntent = "products services wholesale retail store contact phone email"

// BuildResearchQuery combines the business name, city and domain with the
// fixed commercial intent terms. Empty parts are omitted.
func BuildResearchQuery(website, businessName, city string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{businessName, city, website} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, researchIntent)
	return strings.Join(parts, " ")
}

// research runs the single domain-scoped search for a prospect. Every
// failure is logged and absorbed: a nil response means the run continues
// without research context.
func (p *Pipeline) research(ctx context.Context, log *zap.Logger, prospect *model.Prospect) *tavily.SearchResponse {
	if p.researcher == nil {
		log.Warn("pipeline: research client not configured, skipping research")
		return nil
	}

	if p.opts.ResearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ResearchTimeout)
		defer cancel()
	}

	req := tavily.SearchRequest{
		Query:             BuildResearchQuery(prospect.Website, prospect.BusinessName, prospect.City),
		SearchDepth:       p.opts.SearchDepth,
		IncludeAnswer:     true,
		IncludeRawContent: true,
		MaxResults:        p.opts.MaxResults,
		IncludeDomains:    []string{prospect.Website},
	}

	start := time.Now()
	resp, err := resilience.Retry(ctx, p.opts.ResearchRetry, "tavily.search", func(ctx context.Context) (*tavily.SearchResponse, error) {
		return p.researcher.Search(ctx, req)
	})
	stageDuration.WithLabelValues("research").Observe(time.Since(start).Seconds())

	if err != nil {
		researchFailures.Inc()
		log.Warn("pipeline: research failed, continuing without it",
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return nil
	}

	log.Info("pipeline: research complete",
		zap.Int("results", len(resp.Results)),
		zap.Bool("has_answer", resp.Answer != ""),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp
}
