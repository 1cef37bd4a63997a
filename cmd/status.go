package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospector/internal/model"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status <website>",
	Short: "Show the stored intelligence for a prospect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		website := model.NormalizeWebsite(args[0])
		if website == "" {
			return eris.New("status: website is required")
		}
		p, err := st.GetProspect(ctx, website)
		if err != nil {
			return eris.Wrapf(err, "status: get %s", website)
		}
		return writeProspect(os.Stdout, p, statusOutput)
	},
}

// prospectView is the printable form of a prospect. The research payload is
// left out; it is large and read through the API.
type prospectView struct {
	Website      string     `json:"website" yaml:"website"`
	BusinessName string     `json:"business_name,omitempty" yaml:"business_name,omitempty"`
	City         string     `json:"city,omitempty" yaml:"city,omitempty"`
	Status       string     `json:"intelligence_status" yaml:"intelligence_status"`
	RunID        string     `json:"intelligence_run_id,omitempty" yaml:"intelligence_run_id,omitempty"`
	LastGather   string     `json:"last_intelligence_gather,omitempty" yaml:"last_intelligence_gather,omitempty"`
	Grade        string     `json:"ai_grade,omitempty" yaml:"ai_grade,omitempty"`
	GradeReason  string     `json:"ai_grade_reason,omitempty" yaml:"ai_grade_reason,omitempty"`
	MusicFocus   *bool      `json:"ai_music_focus,omitempty" yaml:"ai_music_focus,omitempty"`
	Icebreakers  string     `json:"icebreakers,omitempty" yaml:"icebreakers,omitempty"`
	Report       string     `json:"ai_markdown,omitempty" yaml:"ai_markdown,omitempty"`
	Contacts     contactOut `json:"contacts" yaml:"contacts"`
}

type contactOut struct {
	Phone     string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email     string `json:"email,omitempty" yaml:"email,omitempty"`
	Facebook  string `json:"facebook_page,omitempty" yaml:"facebook_page,omitempty"`
	Instagram string `json:"instagram_page,omitempty" yaml:"instagram_page,omitempty"`
}

func newProspectView(p *model.Prospect) prospectView {
	v := prospectView{
		Website:      p.Website,
		BusinessName: p.BusinessName,
		City:         p.City,
		Status:       string(p.Status),
		RunID:        p.RunID,
		Grade:        gradeOf(p),
		GradeReason:  model.Deref(p.AIGradeReason),
		MusicFocus:   p.AIMusicFocus,
		Icebreakers:  model.Deref(p.Icebreakers),
		Report:       model.Deref(p.AIMarkdown),
		Contacts: contactOut{
			Phone:     model.Deref(p.Phone),
			Email:     model.Deref(p.Email),
			Facebook:  model.Deref(p.Facebook),
			Instagram: model.Deref(p.Instagram),
		},
	}
	if p.LastGather != nil {
		v.LastGather = p.LastGather.UTC().Format("2006-01-02T15:04:05Z")
	}
	return v
}

// writeProspect prints p as indented JSON or YAML.
func writeProspect(w io.Writer, p *model.Prospect, format string) error {
	v := newProspectView(p)
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(statusCmd)
}
