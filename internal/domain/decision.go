package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Decision is the oracle's recommendation for a single asset.
type Decision struct {
	Action     string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	RiskLevel  string  `json:"risk_level"`
}

// ParseDecision builds a validated decision from a raw oracle response.
func ParseDecision(raw string) (*Decision, error) {
	response := sanitizeDecisionPayload(raw)

	if !json.Valid([]byte(response)) {
		return nil, errors.New("invalid JSON structure")
	}

	var decision Decision
	if err := json.Unmarshal([]byte(response), &decision); err != nil {
		return nil, errors.Wrap(err, "JSON unmarshal error")
	}

	if err := decision.Validate(); err != nil {
		return nil, err
	}

	return &decision, nil
}

// Models tend to wrap JSON answers in markdown fences even when told not to.
func sanitizeDecisionPayload(raw string) string {
	response := strings.TrimSpace(raw)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// Validate validates the decision.
func (d *Decision) Validate() error {
	if d.Action == "" {
		return errors.New("decision field is required")
	}
	if !Action(d.Action).Valid() {
		return fmt.Errorf("invalid decision: %s", d.Action)
	}
	if d.Reason == "" {
		return errors.New("reason field is required")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("invalid confidence: %f (must be 0.0-1.0)", d.Confidence)
	}
	if d.RiskLevel != "" && !RiskLevel(d.RiskLevel).Valid() {
		return fmt.Errorf("invalid risk_level: %s", d.RiskLevel)
	}
	return nil
}

// TradeAction converts the decision string to a typed Action.
func (d *Decision) TradeAction() Action {
	return Action(d.Action)
}

// Risk returns the stated risk tier, defaulting to RiskNone when absent.
func (d *Decision) Risk() RiskLevel {
	if d.RiskLevel == "" {
		return RiskNone
	}
	return RiskLevel(d.RiskLevel)
}
