package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

func workerCommand(r *runtime) *cobra.Command {
	var drain bool
	var limit int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued valuation jobs",
		Long: `Claim queued valuation jobs and look up their battle value and point value.
With --drain the worker exits once no job is due; otherwise it polls until
interrupted.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(r.v, cmd.Flags(), map[string]string{
				"worker.id":          "id",
				"worker.concurrency": "concurrency",
				"worker.batch_size":  "batch",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := r.open(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.Services.Valuation.Enabled() {
				return pipelineerr.New(pipelineerr.CodeConfig, "cli.worker", "valuation.backend is none; nothing can process jobs", nil)
			}

			if drain || limit > 0 {
				rep, err := a.Services.Worker.Drain(ctx, limit)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(rep)
				}
				fmt.Fprintf(r.out, "claimed=%d done=%d requeued=%d failed=%d errors=%d recovered_stale=%d\n",
					rep.Claimed, rep.Done, rep.Requeued, rep.Failed, rep.Errors, rep.Recovered)
				return nil
			}
			a.StartCollectors(ctx)
			return a.Services.Worker.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "Exit when no job is due")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after claiming this many jobs (implies --drain)")
	cmd.Flags().String("id", "", "Worker id recorded on claimed jobs")
	cmd.Flags().Int("concurrency", 0, "Jobs processed concurrently")
	cmd.Flags().Int("batch", 0, "Jobs claimed per batch")
	return cmd
}
