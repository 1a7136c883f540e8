package external

import "strings"

// Outcome is the engine's three-way view of a gateway transaction status
type Outcome int

const (
	// OutcomeOther is the zero value so that anything unrecognised stays non-paid
	OutcomeOther Outcome = iota
	OutcomePaid
	OutcomeTerminalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeTerminalFailure:
		return "terminal_failure"
	default:
		return "other"
	}
}

// MapStatus classifies a gateway snapshot. Total and pure.
func MapStatus(s *Snapshot) Outcome {
	if s == nil {
		return OutcomeOther
	}
	return MapTransactionStatus(s.TransactionStatus, s.FraudStatus)
}

// MapTransactionStatus classifies a raw transaction status. A card capture
// only counts as paid once the fraud check accepted it (or did not run).
func MapTransactionStatus(status, fraudStatus string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "settlement":
		return OutcomePaid
	case "capture":
		switch strings.ToLower(strings.TrimSpace(fraudStatus)) {
		case "", "accept":
			return OutcomePaid
		default:
			return OutcomeOther
		}
	case "deny", "cancel", "expire", "failure":
		return OutcomeTerminalFailure
	default:
		// pending, authorize, refund, partial_refund, chargeback, unknown
		return OutcomeOther
	}
}
