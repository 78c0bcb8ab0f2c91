// Package main is transferctl, the operator tool of the transfer services.
package main

import (
	"fmt"
	"os"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/logging"
	"wallettx/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	config.LoadEnv()

	rootCmd := &cobra.Command{
		Use:           "transferctl",
		Short:         "Operate the transaction and wallet services",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log infrastructure details")

	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(dlqCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(secretCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	logger, err := logging.New(false, "transferctl")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [identity]",
		Short: "Issue an access token for an account owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			secret := config.GetEnv("JWT_SECRET", "wallettx")

			token, err := utils.GenerateToken(secret, args[0], ttl)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the SERVICE_PASSWORD_HASH value for a service password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashed, err := utils.HashPassword(args[0])
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
}

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a random value for JWT_SECRET or SERVICE_PASSWORD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := utils.GenerateSecret()
			if err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
