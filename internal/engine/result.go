package engine

// Cycle attempt statuses returned to callers. Coordination outcomes are
// values, not errors: every caller gets an explanation it can surface.
const (
	CycleSuccess = "success"
	CycleSkipped = "skipped"
	CycleBusy    = "busy"
	CycleFailed  = "failed"
)

// Skip and busy reasons.
const (
	ReasonNotDue            = "not due"
	ReasonAlreadyInProgress = "already in progress"
	ReasonAlreadyPaid       = "already paid"
	ReasonMaxAttempts       = "max attempts reached"
	ReasonPoolBelowMinimum  = "pool below minimum"
	ReasonNoEligibleWinners = "no eligible winners"
	ReasonPriceUnavailable  = "price unavailable"
)

// Payee outcome statuses inside a CycleResult. Skipped payees had a
// computed amount below the minimum transferable unit and were never
// attempted.
const (
	PayeeSuccess = "success"
	PayeeFailed  = "failed"
	PayeeSkipped = "skipped"
)

// PayeeOutcome summarizes one payee of one cycle attempt. Rank 0 is the
// fee recipient.
type PayeeOutcome struct {
	Rank         int     `json:"rank"`
	Wallet       string  `json:"wallet"`
	AmountNative float64 `json:"amount_native"`
	AmountUsd    float64 `json:"amount_usd"`
	Status       string  `json:"status"`
	TxRef        string  `json:"tx_ref,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// CycleResult is the structured outcome of one payout attempt.
type CycleResult struct {
	Status string         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Cycle  int64          `json:"cycle"`
	Payees []PayeeOutcome `json:"payees,omitempty"`
}

// CycleStatus reports the payout timer to read-path consumers.
type CycleStatus struct {
	SecondsUntilNext int64 `json:"seconds_until_next"`
	CurrentCycle     int64 `json:"current_cycle"`
}
