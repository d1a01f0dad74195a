package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpx "govconsole/internal/http"
	"govconsole/internal/remotelist"
	govsvc "govconsole/internal/services/governance"
	"govconsole/internal/services/mirror"
	"govconsole/internal/services/views"
)

func serveCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			svc := govsvc.NewService(a.client, a.proposals, a.govs)
			reg := views.NewRegistry(svc.ProposalProvider(), a.stores,
				remotelist.Options{QueryParametersPrefix: a.cfg.Views.ListPrefix}, a.metrics)
			defer reg.CloseAll()
			go reg.RunSweeper(ctx, time.Minute, a.cfg.Views.MaxIdle)

			if !noSync {
				worker := mirror.NewWorker(a.client, a.proposals, a.govs, a.metrics, a.cfg.Sync.PollEvery, a.cfg.Sync.Chunk)
				go worker.Run(ctx)
			}

			srv := &http.Server{
				Addr: ":" + a.cfg.App.Port,
				Handler: httpx.NewRouter(httpx.RouterDependencies{
					Config:     a.cfg,
					Governance: svc,
					Views:      reg,
					Logs:       a.logs,
					Metrics:    a.metrics,
				}),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Msgf("govconsole API listening on :%s", a.cfg.App.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case <-quit:
			case err := <-errCh:
				return err
			}
			cancel()

			ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Do not run the proposal sync worker")
	return cmd
}
