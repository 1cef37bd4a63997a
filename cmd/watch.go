package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/api"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/poller"
)

var (
	watchServer string
	watchName   string
	watchCity   string
	watchOutput string
)

var watchCmd = &cobra.Command{
	Use:   "watch <website>",
	Short: "Trigger a run through the API and poll until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("watch"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if cfg.Poller.TimeoutSecs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Poller.TimeoutSecs)*time.Second)
			defer cancel()
		}

		client := api.NewClient(watchServerURL(), &http.Client{Timeout: 30 * time.Second})
		p, err := watchRun(ctx, client, pipeline.RunRequest{
			Website:      args[0],
			BusinessName: watchName,
			City:         watchCity,
			RequestedBy:  "cli",
		}, time.Duration(cfg.Poller.IntervalMs)*time.Millisecond, os.Stderr)
		if err != nil {
			return err
		}
		if err := writeProspect(os.Stdout, p, watchOutput); err != nil {
			return err
		}
		if p.Status == model.StatusError {
			return eris.Errorf("intelligence run for %s ended in error", p.Website)
		}
		return nil
	},
}

// runTrigger is the client side of the trigger endpoint.
type runTrigger interface {
	poller.Fetcher
	Trigger(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunAck, error)
}

// watchRun opens a poll session in the optimistic researching state, fires
// the trigger and waits for the run to reach a terminal status. Progress
// lines go to progress.
func watchRun(ctx context.Context, client runTrigger, req pipeline.RunRequest, interval time.Duration, progress io.Writer) (*model.Prospect, error) {
	website := model.NormalizeWebsite(req.Website)
	if website == "" {
		return nil, pipeline.ErrInvalidWebsite
	}

	var last model.IntelligenceStatus
	session := poller.New(client, interval).NewSession(website, func(u poller.Update) {
		if u.Err != nil {
			zap.L().Debug("poll failed", zap.String("website", website), zap.Error(u.Err))
			return
		}
		if u.Status != last {
			last = u.Status
			fmt.Fprintf(progress, "%s: %s\n", website, u.Status)
		}
	})
	defer session.Stop()

	ack, err := client.Trigger(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "watch: trigger run")
	}
	session.Start(ctx, ack.RunID)

	p, err := session.Wait(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "watch: wait for run")
	}
	return p, nil
}

func watchServerURL() string {
	if watchServer != "" {
		return watchServer
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "", "API base URL (default http://localhost:<server.port>)")
	watchCmd.Flags().StringVar(&watchName, "name", "", "business name")
	watchCmd.Flags().StringVar(&watchCity, "city", "", "business city")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(watchCmd)
}
