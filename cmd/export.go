package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/export"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

var (
	exportOut    string
	exportStatus string
	exportGrade  string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write prospects and their grades to an XLSX spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := exportFilter()
		if err != nil {
			return err
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prospects, err := st.ListProspects(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "export: list prospects")
		}
		if err := export.Save(exportOut, prospects); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("prospects", len(prospects)),
		)
		return nil
	},
}

func exportFilter() (store.ProspectFilter, error) {
	filter := store.ProspectFilter{Limit: exportLimit}
	if exportStatus != "" {
		filter.Status = model.IntelligenceStatus(exportStatus)
		if !filter.Status.Valid() {
			return filter, eris.Errorf("export: unknown status %q", exportStatus)
		}
	}
	if exportGrade != "" {
		g, ok := model.ParseGrade(exportGrade)
		if !ok {
			return filter, eris.Errorf("export: unknown grade %q", exportGrade)
		}
		filter.Grade = g
	}
	return filter, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "prospects.xlsx", "output file")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only prospects in this intelligence status")
	exportCmd.Flags().StringVar(&exportGrade, "grade", "", "only prospects with this grade")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 10000, "max number of prospects")
	rootCmd.AddCommand(exportCmd)
}
