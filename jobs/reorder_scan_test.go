package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/stock"
)

func TestFormatLowStockBody(t *testing.T) {
	body := formatLowStockBody([]stock.LowStockItem{
		{ProductID: 1, SKU: "SKU-1", Name: "Sugar", ReorderLevel: 1000, TotalStock: 250},
		{ProductID: 2, SKU: "SKU-2", Name: "Rice", ReorderLevel: 12500, TotalStock: 9800},
	})
	require.Contains(t, body, "Sugar (SKU-1): 250 on hand, reorder at 1,000")
	require.Contains(t, body, "Rice (SKU-2): 9,800 on hand, reorder at 12,500")
}

func TestDefaultCron(t *testing.T) {
	entries, err := DefaultCron("ops@teba.local")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		require.NotEmpty(t, entry.Spec)
		require.NotNil(t, entry.Task)
	}
}
