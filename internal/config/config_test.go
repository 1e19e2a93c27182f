package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-rowchange/internal/detector"
)

const sampleConfig = `
mysql:
  host: db.local
  user: cdc
  password: secret
  server_id: 1001
nats:
  url: nats://localhost:4222
logging:
  level: debug
detect:
  feedback_size: 5000
  events: [insert, update]
  tables:
    - database: shop
      table: orders
      fields:
        - name: status
          case_sensitive: false
        - name: amount
          include_old_value: false
        - name: owner
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.local", cfg.MySQL.Host)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, "mysql", cfg.MySQL.Flavor)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "rowchange", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "binlog.pos", cfg.Binlog.PositionFile)
	assert.Equal(t, []string{"INSERT", "UPDATE"}, cfg.Detect.Events)
	assert.Equal(t, int64(5000), cfg.Detect.FeedbackSize)
	assert.Nil(t, cfg.Processor)

	require.Len(t, cfg.Detect.Tables, 1)
	table := cfg.Detect.Tables[0]
	assert.Equal(t, "shop.orders", table.Key())
	assert.Equal(t, []detector.FieldSpec{
		{Name: "status", CaseSensitive: false, KeepOldValue: true},
		{Name: "amount", CaseSensitive: true, KeepOldValue: false},
		{Name: "owner", CaseSensitive: true, KeepOldValue: true},
	}, table.Meta().Fields())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{"bad yaml", "mysql: [", "failed to parse config file"},
		{"unknown event", "detect:\n  events: [truncate]\n", `unknown event type "TRUNCATE"`},
		{"missing table", "detect:\n  tables:\n    - database: shop\n", "database and table are required"},
		{
			"duplicate table",
			"detect:\n  tables:\n    - {database: a, table: b}\n    - {database: a, table: b}\n",
			"a.b is configured more than once",
		},
		{
			"unnamed field",
			"detect:\n  tables:\n    - database: a\n      table: b\n      fields: [{case_sensitive: true}]\n",
			"name is required",
		},
		{
			"script and rules",
			"processor:\n  enabled: true\n  script: t.js\n  rules: [{table: x}]\n",
			"cannot specify both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.err)
		})
	}
}
