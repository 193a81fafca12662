package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/swiftbridge/message-registry/pkg/registry/api"
	"github.com/swiftbridge/message-registry/pkg/registry/config"
)

type Config struct {
	JwtSecret    string `env:"JWT_SECRET" env-required:"true"`
	ApiKeySHA256 string `env:"API_KEY_SHA256" env-default:""`
}

func main() {
	// Load configuration
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService()
	if err != nil {
		slog.Error("Failed to build registry service", "err", err)
		os.Exit(1)
	}

	// Callers authenticate with a JWT whose subject is their address.
	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtSecret), nil)

	// An API key additionally locks the admin surface when configured.
	var apiKeyMiddleware func(http.Handler) http.Handler
	if cfg.ApiKeySHA256 != "" {
		apiKeyMiddleware, err = middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"admin": cfg.ApiKeySHA256,
			},
		})
		if err != nil {
			slog.Error("Failed to initialize API key middleware", "err", err)
			os.Exit(1)
		}
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	// Initialize API handlers
	messageHandler := api.NewMessageHandler(svc)
	submitterHandler := api.NewSubmitterHandler(svc)
	adminHandler := api.NewAdminHandler(svc)

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Use(api.CallerIdentity)

			r.Mount("/messages", messageHandler.Routes())
			r.Mount("/submitters", submitterHandler.Routes())

			r.Group(func(r chi.Router) {
				if apiKeyMiddleware != nil {
					r.Use(apiKeyMiddleware)
				}
				r.Mount("/admin", adminHandler.Routes())
			})
		})
	})

	slog.Info("Message registry starting",
		"database", serverConfig.DatabaseType,
		"event_sink", serverConfig.EventSink,
		"admin", serverConfig.AdminAddress)

	// Start server
	server.Run()
}
