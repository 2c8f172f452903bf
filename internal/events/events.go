// Package events defines the messages exchanged with the outside world
// around a recompute.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LedgerRecalculated is published after a recompute has been committed.
type LedgerRecalculated struct {
	Trigger   string    `json:"trigger"`
	Entries   int       `json:"entries"`
	Balance   float64   `json:"balance"`
	NetProfit float64   `json:"net_profit"`
	Timestamp time.Time `json:"timestamp"`
}

// RecalculateRequest asks a worker to run a full recompute.
type RecalculateRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewRecalculateRequest(reason string) *RecalculateRequest {
	return &RecalculateRequest{Reason: reason, RequestedAt: time.Now().UTC()}
}

func (m *LedgerRecalculated) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *RecalculateRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerRecalculatedFromJSON(data []byte) (*LedgerRecalculated, error) {
	var msg LedgerRecalculated
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode ledger recalculated: %w", err)
	}
	return &msg, nil
}

func RecalculateRequestFromJSON(data []byte) (*RecalculateRequest, error) {
	var msg RecalculateRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode recalculate request: %w", err)
	}
	return &msg, nil
}

// Publisher delivers LedgerRecalculated events.
type Publisher interface {
	PublishRecalculated(ctx context.Context, ev LedgerRecalculated) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishRecalculated(context.Context, LedgerRecalculated) error { return nil }
func (Nop) Close() error                                                  { return nil }
