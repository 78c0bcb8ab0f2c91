/*
Package wallet is the ledger of the wallet service.

The ledger owns balances. It applies each transfer request at most once,
keyed by transaction id, and reports the outcome through the outbox in the
same database transaction as the balance change:

	ledger := wallet.NewLedger(store, wallet.Config{InitialAmount: decimal.NewFromInt(100)}, logger, nil)

	outcome, err := ledger.ApplyTransfer(ctx, wallet.TransferRequest{
	    TransactionID: id,
	    Sender:        "acct-a",
	    Receiver:      "acct-b",
	    Amount:        decimal.NewFromInt(40),
	})

Business rejections (insufficient funds, unknown account, expired request)
are outcomes, not errors. A returned error means nothing was applied and the
request can be retried.

Wallets are created from AccountProvisioned events with Provision, again at
most once per account.
*/
package wallet
