package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"sdlcboard/internal/app"
	"sdlcboard/internal/engine"
	"sdlcboard/internal/server"
	"sdlcboard/internal/telemetry"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := app.Open(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config

			tel, err := telemetry.Setup(telemetry.Options{
				Exporter: cfg.Telemetry.Exporter,
				Level:    cfg.Telemetry.LogLevel,
			})
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(sctx)
			}()
			logger := tel.Logger

			addr := cfg.Server.Addr
			if cmd.Flags().Changed("addr") || addr == "" {
				addr = viper.GetString("addr")
			}
			basePath := cfg.Server.BasePath
			if cmd.Flags().Changed("base-path") || basePath == "" {
				basePath = viper.GetString("base-path")
			}
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				DevLogin:               cfg.Auth.DevLogin,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SDLCBOARD_JWT_SECRET is required for bearer auth")
			}

			e := engine.New(ws.Repo, engine.Config{
				Logger:         logger,
				Meter:          otel.Meter(telemetry.InstrumentationName),
				RefreshTimeout: cfg.RefreshTimeout(),
			})
			handler, err := server.New(server.Config{
				Engine:   e,
				Repo:     ws.Repo,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			server.StartRefresher(ctx, e, cfg.RefreshInterval(), logger)
			server.StartWebhooks(ctx, ws.Repo, cfg.Webhooks, logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			logger.Info("serving sdlcboard API", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "/v0", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}
