package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluescreen10/authguard/internal/config"
	"github.com/bluescreen10/authguard/internal/identitystub"
	"github.com/bluescreen10/authguard/internal/logging"
)

// NewIdentityStubCmd creates the identity-stub subcommand.
func NewIdentityStubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity-stub",
		Short: "Run a development identity service",
		Long: `Run a development identity service issuing HS256 tokens on
POST /auth/login and renewing them on POST /auth/refresh-token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := logging.SetDefault("authguard-identity-stub", version, logging.Options{
				Format: cfg.Log.Format,
				Level:  cfg.Log.Level,
				Output: cmd.ErrOrStderr(),
			})

			stub := identitystub.New(identitystub.Config{
				Secret:         []byte(cfg.Stub.Secret),
				TokenTTL:       cfg.Stub.TokenTTL,
				AllowedOrigins: cfg.Stub.AllowedOrigins,
				Logger:         logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return listenAndServe(ctx, &http.Server{
				Addr:              cfg.Stub.Listen,
				Handler:           stub.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}, logger)
		},
	}

	config.BindStubFlags(cmd.Flags())
	return cmd
}
