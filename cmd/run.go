package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
)

var (
	runName   string
	runCity   string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run <website>",
	Short: "Run intelligence for a single prospect and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		prospect, runErr := env.Pipeline.Run(ctx, pipeline.RunRequest{
			Website:      args[0],
			BusinessName: runName,
			City:         runCity,
			RequestedBy:  "cli",
		})
		if prospect == nil {
			return eris.Wrap(runErr, "pipeline run")
		}

		log := zap.L().With(zap.String("website", prospect.Website))
		if runErr != nil {
			log.Error("intelligence run failed", zap.Error(runErr))
		} else {
			log.Info("intelligence run complete",
				zap.String("status", string(prospect.Status)),
				zap.String("grade", gradeOf(prospect)),
			)
		}

		if err := writeProspect(os.Stdout, prospect, runOutput); err != nil {
			return err
		}
		if runErr != nil {
			return eris.Wrap(runErr, "pipeline run")
		}
		return nil
	},
}

func gradeOf(p *model.Prospect) string {
	if p.AIGrade == nil {
		return ""
	}
	return string(*p.AIGrade)
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "business name")
	runCmd.Flags().StringVar(&runCity, "city", "", "business city")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(runCmd)
}
