package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/config"
)

// MySQLChecker validates the MySQL connection, permissions and binlog settings
type MySQLChecker struct {
	dsn    string
	logger *logrus.Logger
}

// NewMySQLChecker creates a new MySQL checker
func NewMySQLChecker(cfg config.MySQLConfig, logger *logrus.Logger) *MySQLChecker {
	return &MySQLChecker{
		dsn:    fmt.Sprintf("%s:%s@tcp(%s:%d)/", cfg.User, cfg.Password, cfg.Host, cfg.Port),
		logger: logger,
	}
}

// requiredPrivileges are needed to stream the binlog and read table schemas
var requiredPrivileges = []string{
	"REPLICATION SLAVE",
	"REPLICATION CLIENT",
	"SELECT",
}

// missingPrivileges returns the required privileges absent from grants
func missingPrivileges(grants string) []string {
	upper := strings.ToUpper(grants)
	if strings.Contains(upper, "ALL PRIVILEGES ON *.*") {
		return nil
	}
	var missing []string
	for _, priv := range requiredPrivileges {
		if !strings.Contains(upper, priv) {
			missing = append(missing, priv)
		}
	}
	return missing
}

// variable reads a server variable, falling back to SELECT @@name
func variable(db *sql.DB, name string) (string, error) {
	var varName, val string
	err := db.QueryRow("SHOW VARIABLES LIKE ?", name).Scan(&varName, &val)
	if err == nil {
		return val, nil
	}
	if err := db.QueryRow("SELECT @@" + name).Scan(&val); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return val, nil
}

// Check verifies connectivity, grants and that the binlog carries full row
// images, without which watched columns may be missing from update events
func (c *MySQLChecker) Check() error {
	db, err := sql.Open("mysql", c.dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	c.logger.Info("Successfully connected to MySQL server")

	rows, err := db.Query("SHOW GRANTS FOR CURRENT_USER()")
	if err != nil {
		rows, err = db.Query("SHOW GRANTS")
		if err != nil {
			return fmt.Errorf("failed to check grants: %w", err)
		}
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating grants: %w", err)
	}

	all := strings.Join(grants, "; ")
	if missing := missingPrivileges(all); len(missing) > 0 {
		return fmt.Errorf("missing required permissions: %s. Current grants: %s", strings.Join(missing, ", "), all)
	}
	c.logger.Info("All required permissions verified")

	logBin, err := variable(db, "log_bin")
	if err != nil {
		c.logger.Warn("Could not verify binlog status")
	} else if logBin != "ON" && logBin != "1" {
		return fmt.Errorf("binary logging (log_bin) is not enabled. Current value: %s", logBin)
	}

	format, err := variable(db, "binlog_format")
	if err == nil && format != "ROW" {
		return fmt.Errorf("binlog_format is %s, row change detection requires ROW", format)
	}

	image, err := variable(db, "binlog_row_image")
	if err == nil && image != "FULL" {
		c.logger.Warnf("binlog_row_image is %s, columns not in the image will compare as null", image)
	}

	return nil
}
