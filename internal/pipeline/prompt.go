package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/pkg/tavily"
)

// DefaultSystemPrompt is the fixed instruction set sent with every analysis
// call. The section order is the contract ParseAnalysis relies on.
const DefaultSystemPrompt = `You are a sales research assistant for a wholesale distributor of musical instruments and accessories. You help sales reps qualify retail prospects and open conversations with them.

Write at an 8th-grade reading level. Be specific and concrete. Never invent facts: only use details present in the research, the website, or the screenshot.

Respond with exactly these sections, in this order:

1. A short narrative report (2-4 paragraphs) describing what the business sells, who it serves, and how it could fit a wholesale music account.

2. A section headed "Icebreakers" with 3 to 5 one-sentence conversation openers, one per line, each grounded in a real detail about the business. If no authentic detail is available, leave the section empty.

3. A section headed "Contact Information" with these lines, writing "Not found" when a value is unknown:
Phone: <phone>
Email: <email>
Facebook: <facebook page URL>
Instagram: <instagram profile URL>

4. Grade: <one letter A, B, C, D or F for wholesale sales potential>

5. Reasoning: <one sentence explaining the grade>

6. Music Focus: <true if the business primarily sells music products, otherwise false>`

// maxResearchChars bounds the research excerpt included in the user message.
const maxResearchChars = 8000

// Prompts holds the analysis instructions. A YAML file can override the
// defaults.
type Prompts struct {
	System string `yaml:"system"`
}

// DefaultPrompts returns the built-in instructions.
func DefaultPrompts() *Prompts {
	return &Prompts{System: DefaultSystemPrompt}
}

// LoadPrompts reads a prompt override file. Fields left empty keep their
// defaults.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read prompts %s", path)
	}

	// The YAML has a top-level "prompts" key
	var wrapper struct {
		Prompts Prompts `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse prompts")
	}

	p := DefaultPrompts()
	if s := strings.TrimSpace(wrapper.Prompts.System); s != "" {
		p.System = s
	}
	return p, nil
}

// BuildUserMessage assembles the per-prospect analysis context.
func BuildUserMessage(prospect *model.Prospect, research *tavily.SearchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n", prospect.Website)
	fmt.Fprintf(&b, "Business name: %s\n", orUnknown(prospect.BusinessName))
	fmt.Fprintf(&b, "City: %s\n", orUnknown(prospect.City))

	b.WriteString("\nResearch summary:\n")
	if research != nil && strings.TrimSpace(research.Answer) != "" {
		b.WriteString(strings.TrimSpace(research.Answer))
	} else {
		b.WriteString("No research summary available.")
	}
	b.WriteString("\n")

	if research != nil && len(research.Results) > 0 {
		b.WriteString("\nResearch excerpts:\n")
		var excerpts strings.Builder
		for _, r := range research.Results {
			fmt.Fprintf(&excerpts, "- %s (%s)\n%s\n", r.Title, r.URL, strings.TrimSpace(r.Content))
		}
		b.WriteString(truncate(excerpts.String(), maxResearchChars))
	}

	if prospect.ScreenshotURL != nil && *prospect.ScreenshotURL != "" {
		b.WriteString("\nThe attached image is a screenshot of the homepage.\n")
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary.
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
