package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authguard CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authguard",
		Short: "authguard - session guard for web front-ends",
		Long: `authguard sits in front of a web front-end and gates every navigation
on the session cookie, refreshing the session token against the identity
service before letting the request through.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewIdentityStubCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("authguard %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
