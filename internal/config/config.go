package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mysql-rowchange/internal/detector"
)

type Config struct {
	MySQL     MySQLConfig      `yaml:"mysql"`
	Binlog    BinlogConfig     `yaml:"binlog"`
	NATS      NATSConfig       `yaml:"nats"`
	Logging   LoggingConfig    `yaml:"logging"`
	Processor *ProcessorConfig `yaml:"processor"`
	Detect    DetectConfig     `yaml:"detect"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	ServerID uint32 `yaml:"server_id"`
	Flavor   string `yaml:"flavor"`   // mysql, mariadb
	UseGTID  bool   `yaml:"use_gtid"` // only logged, file:position is used
}

type BinlogConfig struct {
	PositionFile  string `yaml:"position_file"`
	StartPosition uint32 `yaml:"start_position"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"` // events go to <prefix>.<database>.<table>
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProcessorConfig configures the optional transformation of published events
type ProcessorConfig struct {
	Enabled bool         `yaml:"enabled"`
	Script  string       `yaml:"script"` // JavaScript file, takes precedence over rules
	Rules   []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Database  string            `yaml:"database"`
	Table     string            `yaml:"table"`
	Include   []string          `yaml:"include"`
	Exclude   []string          `yaml:"exclude"`
	Rename    map[string]string `yaml:"rename"`
	AddFields map[string]string `yaml:"add_fields"`
}

// DetectConfig lists the tables whose row stream is watched for changes
type DetectConfig struct {
	FeedbackSize int64         `yaml:"feedback_size"`
	Events       []string      `yaml:"events"` // INSERT, UPDATE, DELETE
	Tables       []TableConfig `yaml:"tables"`
}

type TableConfig struct {
	Database string        `yaml:"database"`
	Table    string        `yaml:"table"`
	Fields   []FieldConfig `yaml:"fields"`
}

// FieldConfig flags default to true when omitted
type FieldConfig struct {
	Name            string `yaml:"name"`
	CaseSensitive   *bool  `yaml:"case_sensitive"`
	IncludeOldValue *bool  `yaml:"include_old_value"`
}

// Key identifies the table as "database.table"
func (t TableConfig) Key() string {
	return TableKey(t.Database, t.Table)
}

// TableKey builds the lookup key used for per-table state
func TableKey(database, table string) string {
	return fmt.Sprintf("%s.%s", database, table)
}

// Meta converts the watched field list into a detector configuration
func (t TableConfig) Meta() *detector.Meta {
	fields := make([]detector.FieldSpec, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = detector.FieldSpec{
			Name:          f.Name,
			CaseSensitive: f.CaseSensitive == nil || *f.CaseSensitive,
			KeepOldValue:  f.IncludeOldValue == nil || *f.IncludeOldValue,
		}
	}
	return detector.NewMeta(fields...)
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "rowchange"
	}
	if config.MySQL.Flavor == "" {
		config.MySQL.Flavor = "mysql"
	}
	if config.MySQL.Port == 0 {
		config.MySQL.Port = 3306
	}
	if config.Binlog.PositionFile == "" {
		config.Binlog.PositionFile = "binlog.pos"
	}
	if len(config.Detect.Events) == 0 {
		config.Detect.Events = []string{"INSERT", "UPDATE"}
	}
	for i, ev := range config.Detect.Events {
		config.Detect.Events[i] = strings.ToUpper(ev)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports structural errors that make the configuration unusable
func (c *Config) Validate() error {
	for _, ev := range c.Detect.Events {
		switch ev {
		case "INSERT", "UPDATE", "DELETE":
		default:
			return fmt.Errorf("detect: unknown event type %q", ev)
		}
	}

	seen := make(map[string]bool, len(c.Detect.Tables))
	for i, t := range c.Detect.Tables {
		if t.Database == "" || t.Table == "" {
			return fmt.Errorf("detect table %d: database and table are required", i)
		}
		if seen[t.Key()] {
			return fmt.Errorf("detect table %d: %s is configured more than once", i, t.Key())
		}
		seen[t.Key()] = true
		for j, f := range t.Fields {
			if f.Name == "" {
				return fmt.Errorf("detect table %s field %d: name is required", t.Key(), j)
			}
		}
	}

	if c.Processor != nil && c.Processor.Enabled {
		if c.Processor.Script != "" && len(c.Processor.Rules) > 0 {
			return fmt.Errorf("processor: cannot specify both 'script' and 'rules'")
		}
	}
	return nil
}
