package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coinpilot/coinpilot/internal/domain"
)

func TestUpdateRejectsMissingID(t *testing.T) {
	r := &TradeRepository{}

	err := r.Update(context.Background(), &domain.Trade{Status: domain.StatusSuccess})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "without id")
}

func TestUpdateRejectsNonTerminalStatus(t *testing.T) {
	r := &TradeRepository{}

	// updates exist only to finish the pending-to-terminal transition
	for _, status := range []domain.TradeStatus{domain.StatusPending, domain.TradeStatus("limbo")} {
		err := r.Update(context.Background(), &domain.Trade{ID: 1, Status: status})
		assert.Error(t, err, status)
		assert.Contains(t, err.Error(), "non-terminal")
	}
}
