package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/app"
	"github.com/saudemunicipal/console/internal/config"
	internalhttp "github.com/saudemunicipal/console/internal/http"
	"github.com/saudemunicipal/console/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("console encerrado com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer a.Close()

	unsubscribe := a.Sessions.Subscribe(func(snap session.Snapshot) {
		event := log.Debug().Str("status", string(snap.Status))
		if snap.User != nil {
			event = event.Str("user_id", snap.User.ID)
		}
		event.Msg("sessão alterada")
	})
	defer unsubscribe()

	ctx := context.Background()
	snap := a.Sessions.InitFromStorage(ctx)
	log.Info().Str("status", string(snap.Status)).Msg("sessão inicial carregada")

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           internalhttp.NewRouter(cfg, a.Sessions, a.Catalogs, a.Records),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("console ouvindo")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
