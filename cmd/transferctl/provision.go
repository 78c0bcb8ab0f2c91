package main

import (
	"context"
	"fmt"

	"wallettx/internal/app"
	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func provisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision [phone]",
		Short: "Announce a new account so the wallet service creates its wallet",
		Long: `Publishes an AccountProvisioned event on the account.provisioned topic.
The wallet service creates the wallet with --balance, or with its
WALLET_INITIAL_AMOUNT when the flag is omitted. Publishing the same
account twice never resets its balance.`,
		Args: cobra.ExactArgs(1),
		RunE: runProvision,
	}
	cmd.Flags().String("account", "", "Account id (default: a new uuid)")
	cmd.Flags().String("balance", "", "Initial balance")
	return cmd
}

func runProvision(cmd *cobra.Command, args []string) error {
	accountID, _ := cmd.Flags().GetString("account")
	if accountID == "" {
		accountID = uuid.NewString()
	}

	payload := events.AccountProvisioned{AccountID: accountID, OwnerPhoneNo: args[0]}
	if raw, _ := cmd.Flags().GetString("balance"); raw != "" {
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid balance %q: %w", raw, err)
		}
		payload.InitialBalance = &balance
	}

	env, err := events.New(events.TypeAccountProvisioned, accountID, "transferctl", payload)
	if err != nil {
		return err
	}
	body, err := events.Encode(env)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load(config.WalletService)
	infra, err := app.Connect(ctx, cfg, newLogger(cmd))
	if err != nil {
		return err
	}
	defer infra.Close()

	err = infra.Bus.Publish(ctx, bus.Message{
		Topic: env.Topic(),
		Key:   env.Key(),
		Body:  body,
		Headers: map[string]string{
			events.HeaderEventID:   env.EventID,
			events.HeaderEventType: string(env.EventType),
			events.HeaderProducer:  env.Producer,
		},
	})
	if err != nil {
		return fmt.Errorf("publish account: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "account %s provisioned for %s (event %s)\n", accountID, args[0], env.EventID)
	return nil
}
