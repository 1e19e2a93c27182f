package detector

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mysql-rowchange/internal/row"
)

// RowSource supplies input rows one at a time. GetRow returns io.EOF once the
// stream is exhausted.
type RowSource interface {
	GetRow(ctx context.Context) (*row.Schema, row.Row, error)
}

// RowSink receives emitted rows
type RowSink interface {
	PutRow(schema *row.Schema, r row.Row) error
}

// Run drives the detector from src until it is exhausted, handing every
// emission to sink. It stops early when ctx is cancelled.
func (d *Detector) Run(ctx context.Context, src RowSource, sink RowSink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		schema, r, err := src.GetRow(ctx)
		if errors.Is(err, io.EOF) {
			d.logger.Debugf("Input exhausted after %d rows, %d emitted", d.stats.RowsRead, d.stats.RowsEmitted)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get row: %w", err)
		}

		emission, err := d.ProcessRow(schema, r)
		if err != nil {
			return err
		}
		if emission == nil {
			continue
		}
		if err := sink.PutRow(emission.Schema, emission.Row); err != nil {
			return fmt.Errorf("failed to put row: %w", err)
		}
	}
}

// SliceSource replays a fixed list of rows against one schema
type SliceSource struct {
	Schema *row.Schema
	Rows   []row.Row
	off    int
}

func (s *SliceSource) GetRow(ctx context.Context) (*row.Schema, row.Row, error) {
	if s.off >= len(s.Rows) {
		return nil, nil, io.EOF
	}
	r := s.Rows[s.off]
	s.off++
	return s.Schema, r, nil
}

// CollectSink keeps every row it is given
type CollectSink struct {
	Schema *row.Schema
	Rows   []row.Row
}

func (s *CollectSink) PutRow(schema *row.Schema, r row.Row) error {
	s.Schema = schema
	s.Rows = append(s.Rows, r)
	return nil
}
