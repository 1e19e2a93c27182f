package processor

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/config"
	"mysql-rowchange/internal/row"
	"mysql-rowchange/internal/value"
)

// SchemaResolver returns the column layout of a table
type SchemaResolver interface {
	TableSchema(database, table string) (*row.Schema, error)
}

// MySQLSchemaResolver reads column names and types from INFORMATION_SCHEMA
type MySQLSchemaResolver struct {
	db     *sql.DB
	cache  map[string]*row.Schema
	logger *logrus.Logger
}

// NewMySQLSchemaResolver opens the connection used for schema lookups
func NewMySQLSchemaResolver(host string, port int, user, password string, logger *logrus.Logger) (*MySQLSchemaResolver, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", user, password, host, port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &MySQLSchemaResolver{
		db:     db,
		cache:  make(map[string]*row.Schema),
		logger: logger,
	}, nil
}

// Close closes the database connection
func (r *MySQLSchemaResolver) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// TableSchema returns the cached schema of database.table, querying MySQL on
// first use
func (r *MySQLSchemaResolver) TableSchema(database, table string) (*row.Schema, error) {
	key := config.TableKey(database, table)
	if s, ok := r.cache[key]; ok {
		return s, nil
	}

	query := `
		SELECT COLUMN_NAME, COLUMN_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := r.db.Query(query, database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column info: %w", err)
	}
	defer rows.Close()

	var columns []row.Column
	for rows.Next() {
		var name, columnType string
		if err := rows.Scan(&name, &columnType); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		kind := KindFromColumnType(columnType)
		if kind == value.KindNone {
			r.logger.Debugf("Column %s.%s has unsupported type %s", key, name, columnType)
		}
		columns = append(columns, row.Column{Name: name, Kind: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", key)
	}

	s := row.NewSchema(columns...)
	r.cache[key] = s
	r.logger.Debugf("Fetched %d columns for %s", len(columns), key)
	return s, nil
}

// KindFromColumnType maps an INFORMATION_SCHEMA COLUMN_TYPE to the kind the
// binlog value of that column is converted to
func KindFromColumnType(columnType string) value.Kind {
	ct := strings.ToLower(strings.TrimSpace(columnType))
	if ct == "tinyint(1)" {
		return value.KindBoolean
	}
	unsigned := strings.Contains(ct, "unsigned")

	base := ct
	if i := strings.IndexAny(base, "( "); i >= 0 {
		base = base[:i]
	}

	switch base {
	case "bigint":
		if unsigned {
			return value.KindBigNumber
		}
		return value.KindInteger
	case "tinyint", "smallint", "mediumint", "int", "integer", "year", "bit", "enum", "set":
		return value.KindInteger
	case "float", "double", "real":
		return value.KindNumber
	case "decimal", "numeric":
		return value.KindBigNumber
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext", "json", "time":
		return value.KindString
	case "date", "datetime", "timestamp":
		return value.KindDate
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob":
		return value.KindBinary
	}
	return value.KindNone
}

// convertRow turns one binlog row image into a Row of schema. Values beyond
// the schema are left null so the detector sees the arity mismatch.
func convertRow(schema *row.Schema, raw []interface{}) (row.Row, error) {
	r := make(row.Row, len(raw))
	for i, v := range raw {
		if i >= schema.Len() {
			break
		}
		col := schema.Column(i)
		if col.Kind == value.KindNone {
			r[i] = value.Null(value.KindNone)
			continue
		}
		cv, err := value.Convert(col.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		r[i] = cv
	}
	return r, nil
}
