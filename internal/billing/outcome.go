package billing

import (
	"github.com/google/uuid"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome is the result of one subscription in a billing pass.
type Outcome struct {
	SubscriptionID uuid.UUID        `json:"subscription_id"`
	DojangCode     string           `json:"dojang_code"`
	Status         OutcomeStatus    `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	TransactionID  string           `json:"transaction_id,omitempty"`
	RetryState     enums.RetryState `json:"retry_state,omitempty"`
}

// BatchResult aggregates one ProcessDue pass.
type BatchResult struct {
	Candidates int       `json:"candidates"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Outcomes   []Outcome `json:"outcomes"`
}

func (b *BatchResult) add(o Outcome) {
	switch o.Status {
	case OutcomeSucceeded:
		b.Succeeded++
	case OutcomeFailed:
		b.Failed++
	default:
		b.Skipped++
	}
	b.Outcomes = append(b.Outcomes, o)
}
