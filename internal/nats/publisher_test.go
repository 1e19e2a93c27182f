package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-rowchange/internal/models"
)

func TestEncode(t *testing.T) {
	event := &models.RowChangeEvent{
		ID:                  "id-1",
		Type:                "INSERT",
		Database:            "shop",
		Table:               "orders",
		Timestamp:           10,
		Columns:             []string{"status"},
		Row:                 map[string]interface{}{"status": "closed"},
		Changed:             []string{"status"},
		RowsSinceLastChange: 3,
	}

	data, err := Encode(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "id-1",
		"type": "INSERT",
		"database": "shop",
		"table": "orders",
		"timestamp": 10,
		"columns": ["status"],
		"row": {"status": "closed"},
		"changed": ["status"],
		"rows_since_last_change": 3
	}`, string(data))

	event.RawJSON = []byte(`{"custom":true}`)
	data, err = Encode(event)
	require.NoError(t, err)
	assert.Equal(t, `{"custom":true}`, string(data))
}
