package main

import (
	"fmt"

	"github.com/jrsteele09/go-passthru-auth/internal/config"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

// NewRootCmd creates the command tree. Running the binary without a subcommand serves.
func NewRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "passthru-auth",
		Short: "OAuth2 authorization bridge that passes Google access tokens through to clients",
		Long: `passthru-auth acts as the OAuth2 authorization server for its clients while delegating
user authentication to Google. Clients receive a signed session artifact wrapping the Google
access token, and requests presenting it get a request scoped handle on the Google API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(envFile)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file read before the environment (ignored if missing)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the authorization bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(envFile)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			mode := "dynamic"
			if cfg.StaticClients() {
				mode = "static (" + cfg.ClientsPath + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: issuer=%s registration=%s cache=%s\n", cfg.Issuer(), mode, redactURL(cfg.RedisURL))
			return nil
		},
	})
	return rootCmd
}
