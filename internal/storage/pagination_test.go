package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpilot/coinpilot/internal/domain"
)

func tradeRows(ids ...uint64) []domain.Trade {
	rows := make([]domain.Trade, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, domain.Trade{ID: id})
	}
	return rows
}

func TestNewPage(t *testing.T) {
	id := func(tr domain.Trade) uint64 { return tr.ID }

	t.Run("full page with more rows behind", func(t *testing.T) {
		// limit+1 probe returned one extra row
		page := newPage(tradeRows(9, 8, 7, 6), 3, id)

		require.Len(t, page.Items, 3)
		assert.True(t, page.HasNext)
		require.NotNil(t, page.NextCursor)
		assert.Equal(t, uint64(7), *page.NextCursor)
	})

	t.Run("final page", func(t *testing.T) {
		page := newPage(tradeRows(3, 2, 1), 3, id)

		require.Len(t, page.Items, 3)
		assert.False(t, page.HasNext)
		assert.Nil(t, page.NextCursor)
	})

	t.Run("empty result", func(t *testing.T) {
		page := newPage(tradeRows(), 3, id)

		assert.Empty(t, page.Items)
		assert.False(t, page.HasNext)
		assert.Nil(t, page.NextCursor)
	})
}

// Walking all pages through NextCursor must yield every row exactly once in
// descending order.
func TestPageWalk(t *testing.T) {
	const total, limit = 10, 3

	all := make([]domain.Trade, 0, total)
	for i := total; i >= 1; i-- {
		all = append(all, domain.Trade{ID: uint64(i)})
	}

	// probe simulates the repository query: rows with id < cursor, newest
	// first, at most limit+1 of them.
	probe := func(cursor uint64) []domain.Trade {
		var rows []domain.Trade
		for _, tr := range all {
			if cursor > 0 && tr.ID >= cursor {
				continue
			}
			rows = append(rows, tr)
			if len(rows) == limit+1 {
				break
			}
		}
		return rows
	}

	var collected []uint64
	cursor := uint64(0)
	for {
		page := newPage(probe(cursor), limit, func(tr domain.Trade) uint64 { return tr.ID })
		for _, tr := range page.Items {
			collected = append(collected, tr.ID)
		}
		if !page.HasNext {
			assert.Nil(t, page.NextCursor)
			break
		}
		require.NotNil(t, page.NextCursor)
		cursor = *page.NextCursor
	}

	require.Len(t, collected, total)
	for i, got := range collected {
		assert.Equal(t, uint64(total-i), got)
	}
}
