package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

func migrateCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(r.out, "schema up to date (%s)\n", a.Cfg.DB.Driver)
			return nil
		},
	}
}

func serveCommand(r *runtime) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP API",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(r.v, cmd.Flags(), map[string]string{"http.addr": "addr"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			if withWorker && !a.Services.Valuation.Enabled() {
				return pipelineerr.New(pipelineerr.CodeConfig, "cli.serve", "--with-worker needs a valuation backend", nil)
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			a.StartCollectors(ctx)
			srv := a.Server()
			g.Go(func() error { return srv.Run(ctx, a.Cfg.HTTP.Addr) })
			if withWorker {
				g.Go(func() error { return a.Services.Worker.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also run the valuation worker in this process")
	return cmd
}
