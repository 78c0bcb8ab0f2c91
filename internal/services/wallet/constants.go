package wallet

// Idempotency operations recorded by the ledger.
const (
	OperationApplyTransfer = "applyTransfer"
	OperationProvision     = "provisionAccount"
)

// Provisioning outcomes.
const (
	ProvisionCreated = "CREATED"
	ProvisionExists  = "EXISTS"
)

const defaultEntriesLimit = 50
