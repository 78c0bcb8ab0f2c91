package transaction

import "time"

// Default configuration values
const (
	DefaultTransferTTL = 30 * time.Minute
	DefaultStaleLimit  = 100
)

// OperationApplySettlement is the idempotency operation of settlement events.
const OperationApplySettlement = "applySettlement"

// Settlement results.
const (
	ResultApplied      SettlementResult = "APPLIED"
	ResultDuplicate    SettlementResult = "DUPLICATE"
	ResultAlreadyFinal SettlementResult = "ALREADY_FINAL"
	// ResultConflict is a SETTLED outcome for a transaction already failed by
	// the reconciler. It is recorded and logged, never applied.
	ResultConflict SettlementResult = "CONFLICT"
)
