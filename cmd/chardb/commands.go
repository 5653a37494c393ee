package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maruel/chardb/internal/config"
	"github.com/maruel/chardb/internal/records"
	"github.com/maruel/chardb/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite the data file with every missing or blank id filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := openStore()
			svc := records.NewService(store, &records.LogObserver{})
			n, err := svc.Normalize(cmd.Context())
			if err != nil {
				return err
			}
			slog.InfoContext(cmd.Context(), "Normalized", "path", store.Path(), "records", n)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token accepted on writes",
		Long:  "Mint an HS256 bearer token signed with the jwt_secret of the server policy file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not set in " + configPath())
			}
			sub := viper.GetString("subject")
			if sub == "" {
				return errors.New("--subject is required")
			}
			tok, err := server.NewToken([]byte(cfg.JWTSecret), sub, viper.GetDuration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().String("subject", "admin", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON Schema of " + config.FileName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := config.Schema()
			if err != nil {
				return fmt.Errorf("failed to generate schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
