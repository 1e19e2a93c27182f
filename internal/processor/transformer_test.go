package processor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-rowchange/internal/config"
	"mysql-rowchange/internal/models"
)

func sampleEvent() *models.RowChangeEvent {
	return &models.RowChangeEvent{
		ID:                  "id-1",
		Type:                "UPDATE",
		Database:            "shop",
		Table:               "orders",
		Timestamp:           1700000000,
		Columns:             []string{"id", "status", "secret"},
		Row:                 map[string]interface{}{"id": int64(3), "status": "closed", "secret": "x"},
		Changed:             []string{"status", "secret"},
		RowsSinceLastChange: 2,
		OldValues:           map[string]interface{}{"status": "open", "secret": "y"},
	}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transform.js")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestTransformerDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr, err := NewTransformer(nil, logger, nil)
	require.NoError(t, err)

	event := sampleEvent()
	out, err := tr.Transform(event)
	require.NoError(t, err)
	assert.Same(t, event, out)
}

func TestTransformerRules(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr, err := NewTransformer(&config.ProcessorConfig{
		Enabled: true,
		Rules: []config.RuleConfig{
			{Table: "customers", Exclude: []string{"id"}},
			{
				Database:  "SHOP",
				Table:     "orders",
				Exclude:   []string{"Secret"},
				Rename:    map[string]string{"status": "state"},
				AddFields: map[string]string{"source": "mysql"},
			},
		},
	}, logger, nil)
	require.NoError(t, err)

	out, err := tr.Transform(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "state", "source"}, out.Columns)
	assert.Equal(t, map[string]interface{}{"id": int64(3), "state": "closed", "source": "mysql"}, out.Row)
	assert.Equal(t, []string{"state"}, out.Changed)
	assert.Equal(t, map[string]interface{}{"state": "open"}, out.OldValues)
	assert.Equal(t, int64(2), out.RowsSinceLastChange)

	other := sampleEvent()
	other.Table = "invoices"
	out, err = tr.Transform(other)
	require.NoError(t, err)
	assert.Equal(t, other, out)
}

func TestTransformerJavaScript(t *testing.T) {
	logger, _ := test.NewNullLogger()
	script := writeScript(t, `
		(function(event) {
			if (event.row.status === "ignored") {
				return null;
			}
			event.row.status = event.row.status.toUpperCase();
			event.origin = "js";
			return event;
		})
	`)
	tr, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, logger, nil)
	require.NoError(t, err)

	out, err := tr.Transform(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", out.Row["status"])
	assert.Equal(t, int64(1700000000), out.Timestamp)
	assert.Equal(t, []string{"status", "secret"}, out.Changed)
	assert.Contains(t, string(out.RawJSON), `"origin":"js"`)

	rejected := sampleEvent()
	rejected.Row["status"] = "ignored"
	_, err = tr.Transform(rejected)
	assert.ErrorIs(t, err, ErrEventRejected)
}

func TestTransformerNamedFunction(t *testing.T) {
	logger, _ := test.NewNullLogger()
	script := writeScript(t, `
		function transform(event) {
			console.log("transforming", event.table);
			return { table: event.table, changed: event.changed };
		}
	`)
	tr, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: script}, logger, nil)
	require.NoError(t, err)

	out, err := tr.Transform(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "orders", out.Table)
	assert.Empty(t, out.Database)
}

func TestTransformerInvalidScript(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewTransformer(&config.ProcessorConfig{Enabled: true, Script: writeScript(t, "var x = 1;")}, logger, nil)
	assert.ErrorContains(t, err, "must export a function")

	_, err = NewTransformer(&config.ProcessorConfig{Enabled: true, Script: writeScript(t, "function (")}, logger, nil)
	assert.ErrorContains(t, err, "invalid JavaScript script")

	_, err = NewTransformer(&config.ProcessorConfig{Enabled: true, Script: "/nonexistent/t.js"}, logger, nil)
	assert.ErrorContains(t, err, "failed to read JavaScript script file")
}

func TestValidateRules(t *testing.T) {
	assert.NoError(t, ValidateRules(nil))
	assert.NoError(t, ValidateRules(&config.ProcessorConfig{Enabled: false, Script: "/missing.js"}))
	assert.ErrorContains(t, ValidateRules(&config.ProcessorConfig{Enabled: true, Script: "/missing.js"}), "not found")
	assert.ErrorContains(t, ValidateRules(&config.ProcessorConfig{
		Enabled: true,
		Rules:   []config.RuleConfig{{Include: []string{"a"}, Exclude: []string{"b"}}},
	}), "cannot specify both")
	assert.ErrorContains(t, ValidateRules(&config.ProcessorConfig{
		Enabled: true,
		Rules:   []config.RuleConfig{{Include: []string{"a"}, Rename: map[string]string{"b": "c"}}},
	}), "rename key 'b'")
	assert.NoError(t, ValidateRules(&config.ProcessorConfig{
		Enabled: true,
		Rules:   []config.RuleConfig{{Include: []string{"A"}, Rename: map[string]string{"a": "c"}}},
	}))
}
