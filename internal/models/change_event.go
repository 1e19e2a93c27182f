package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mysql-rowchange/internal/detector"
)

// eventNamespace seeds deterministic event IDs
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("mysql-rowchange"))

// RowChangeEvent is published for every row on which a watched field changed
type RowChangeEvent struct {
	ID                  string                 `json:"id"`
	Type                string                 `json:"type"` // binlog event type of the row, INSERT or UPDATE
	Database            string                 `json:"database"`
	Table               string                 `json:"table"`
	Timestamp           int64                  `json:"timestamp"`
	Columns             []string               `json:"columns"` // input column order
	Row                 map[string]interface{} `json:"row"`
	Changed             []string               `json:"changed"`
	RowsSinceLastChange int64                  `json:"rows_since_last_change"`
	OldValues           map[string]interface{} `json:"old_values,omitempty"`
	RawJSON             []byte                 `json:"-"` // set by the JavaScript transformer
}

// Position identifies where in the binlog a row was read
type Position struct {
	File   string
	Offset uint32
	RowIdx int
}

// EventID derives a stable ID from the binlog position, so that replaying
// the same binlog range produces the same IDs.
func EventID(database, table string, pos Position) string {
	name := fmt.Sprintf("%s.%s@%s:%d#%d", database, table, pos.File, pos.Offset, pos.RowIdx)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// NewRowChangeEvent splits an emitted row back into its input columns,
// change flags, counter and retained old values.
func NewRowChangeEvent(eventType, database, table string, timestamp int64, pos Position, meta *detector.Meta, em *detector.Emission) (*RowChangeEvent, error) {
	numFields := meta.FieldCount()
	inputLen := em.Schema.Len() - numFields - 1 - meta.CountRetainedFields()
	if inputLen < 0 || len(em.Row) != em.Schema.Len() {
		return nil, fmt.Errorf("emitted row does not match detector output for %s.%s", database, table)
	}

	event := &RowChangeEvent{
		ID:        EventID(database, table, pos),
		Type:      eventType,
		Database:  database,
		Table:     table,
		Timestamp: timestamp,
		Columns:   make([]string, inputLen),
		Row:       make(map[string]interface{}, inputLen),
		Changed:   make([]string, 0, numFields),
	}

	for i := 0; i < inputLen; i++ {
		name := em.Schema.Column(i).Name
		event.Columns[i] = name
		event.Row[name] = em.Row[i].Interface()
	}

	for i := 0; i < numFields; i++ {
		if em.Row[inputLen+i].Bool() {
			name := strings.TrimSuffix(em.Schema.Column(inputLen+i).Name, detector.ChangedSuffix)
			event.Changed = append(event.Changed, name)
		}
	}

	counterPos := inputLen + numFields
	event.RowsSinceLastChange = em.Row[counterPos].Int()

	if meta.CountRetainedFields() > 0 {
		event.OldValues = make(map[string]interface{}, meta.CountRetainedFields())
		for i := counterPos + 1; i < len(em.Row); i++ {
			name := strings.TrimSuffix(em.Schema.Column(i).Name, detector.LastValueSuffix)
			event.OldValues[name] = em.Row[i].Interface()
		}
	}

	return event, nil
}

// Subject returns the NATS subject for the event under prefix
func (e *RowChangeEvent) Subject(prefix string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.Database, e.Table)
}
