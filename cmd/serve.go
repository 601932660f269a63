package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/abhisek/adaptiq/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		rt, err := openRuntime(cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if _, err := rt.manager.Restore(ctx, rt.store.Sessions()); err != nil {
			return fmt.Errorf("restore sessions: %w", err)
		}
		// Sessions that ran out of time while the process was down.
		rt.manager.Sweep(ctx)
		go rt.manager.RunSweeper(ctx, rt.cfg.SweepInterval)

		addr := rt.cfg.HTTPAddr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		srv := api.New(rt.manager, api.Options{
			CORSOrigins: rt.cfg.CORSOrigins,
			Generator:   rt.gen,
			Bank:        rt.store.Questions(),
			Logger:      rt.logger,
		})
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides ADAPTIQ_HTTP_ADDR)")
}
