package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/config"
	"mysql-rowchange/internal/detector"
	"mysql-rowchange/internal/models"
)

// Reader interface for reading binlog events
type Reader interface {
	ReadEvent() (*replication.BinlogEvent, error)
}

// Publisher interface for publishing events
type Publisher interface {
	Publish(event *models.RowChangeEvent) error
}

// tableStream is the change detection state of one watched table
type tableStream struct {
	meta     *detector.Meta
	detector *detector.Detector
}

// Processor feeds binlog row events of watched tables through their change
// detectors and publishes every detected change
type Processor struct {
	reader      Reader
	publisher   Publisher
	transformer *Transformer
	resolver    SchemaResolver
	logger      *logrus.Logger
	streams     map[string]*tableStream
	events      map[string]bool
	binlogFile  string
}

// NewProcessor creates a processor with one detector per configured table
func NewProcessor(reader Reader, publisher Publisher, transformer *Transformer, resolver SchemaResolver, cfg config.DetectConfig, logger *logrus.Logger) *Processor {
	p := &Processor{
		reader:      reader,
		publisher:   publisher,
		transformer: transformer,
		resolver:    resolver,
		logger:      logger,
		streams:     make(map[string]*tableStream, len(cfg.Tables)),
		events:      make(map[string]bool, len(cfg.Events)),
	}

	for _, ev := range cfg.Events {
		p.events[ev] = true
	}

	for _, t := range cfg.Tables {
		meta := t.Meta()
		for _, r := range meta.Check(nil) {
			p.logRemark(t.Key(), r)
		}
		p.streams[t.Key()] = &tableStream{
			meta:     meta,
			detector: detector.New(meta, logger, detector.WithFeedbackSize(cfg.FeedbackSize)),
		}
		logger.Infof("Watching %d fields of %s", meta.FieldCount(), t.Key())
	}

	return p
}

func (p *Processor) logRemark(table string, r detector.Remark) {
	entry := p.logger.WithFields(logrus.Fields{"table": table, "remark": r.Level.String()})
	switch r.Level {
	case detector.RemarkError:
		entry.Error(r.Message)
	case detector.RemarkWarning:
		entry.Warn(r.Message)
	default:
		entry.Debug(r.Message)
	}
}

// eventType maps a rows event header to INSERT, UPDATE or DELETE
func eventType(t replication.EventType) string {
	switch t {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return "INSERT"
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return "UPDATE"
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return "DELETE"
	}
	return ""
}

// rowImages returns the row images to watch. UPDATE events hold
// [before_1, after_1, before_2, after_2, ...] and only the after images are
// used.
func rowImages(rows [][]interface{}, evType string) [][]interface{} {
	if evType != "UPDATE" {
		return rows
	}
	images := make([][]interface{}, 0, len(rows)/2)
	for i := 1; i < len(rows); i += 2 {
		images = append(images, rows[i])
	}
	return images
}

// ProcessRowsEvent runs the rows of a binlog event through the detector of
// its table. Detector errors are returned as is and are fatal to the stream.
func (p *Processor) ProcessRowsEvent(header *replication.EventHeader, event *replication.RowsEvent, evType string) ([]*models.RowChangeEvent, error) {
	database := string(event.Table.Schema)
	table := string(event.Table.Table)
	key := config.TableKey(database, table)

	stream, ok := p.streams[key]
	if !ok || !p.events[evType] {
		return nil, nil
	}

	schema, err := p.resolver.TableSchema(database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get column info for %s: %w", key, err)
	}
	if !stream.detector.Established() {
		for _, r := range stream.meta.Check(schema) {
			p.logRemark(key, r)
		}
	}

	var changes []*models.RowChangeEvent
	for idx, raw := range rowImages(event.Rows, evType) {
		r, err := convertRow(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert row of %s: %w", key, err)
		}

		em, err := stream.detector.ProcessRow(schema, r)
		if err != nil {
			return nil, fmt.Errorf("detect row change on %s: %w", key, err)
		}
		if em == nil {
			continue
		}

		pos := models.Position{File: p.binlogFile, Offset: header.LogPos, RowIdx: idx}
		change, err := models.NewRowChangeEvent(evType, database, table, int64(header.Timestamp), pos, stream.meta, em)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// HandleEvent processes a single binlog event. Only detector failures are
// returned; transform and publish failures are logged.
func (p *Processor) HandleEvent(event *replication.BinlogEvent) error {
	switch e := event.Event.(type) {
	case *replication.TableMapEvent:
		p.logger.Debugf("Table map for %s.%s (ID: %d)", string(e.Schema), string(e.Table), e.TableID)

	case *replication.RowsEvent:
		evType := eventType(event.Header.EventType)
		if evType == "" {
			p.logger.Debugf("Unhandled row event type: %d", event.Header.EventType)
			return nil
		}

		changes, err := p.ProcessRowsEvent(event.Header, e, evType)
		if err != nil {
			return err
		}
		for _, change := range changes {
			p.publish(change)
		}

	case *replication.RotateEvent:
		p.binlogFile = string(e.NextLogName)
		p.logger.Infof("Binlog rotated to: %s", p.binlogFile)

	case *replication.QueryEvent:
		p.logger.Debugf("Query event: %s", string(e.Query))

	case *replication.XIDEvent:
		p.logger.Debugf("XID event: %d", e.XID)

	default:
		p.logger.Debugf("Unhandled event type: %T", e)
	}
	return nil
}

func (p *Processor) publish(change *models.RowChangeEvent) {
	database, table := change.Database, change.Table

	if p.transformer != nil {
		transformed, err := p.transformer.Transform(change)
		if err != nil {
			if errors.Is(err, ErrEventRejected) {
				p.logger.Debugf("Event rejected by transformer: %s.%s", database, table)
				return
			}
			p.logger.Errorf("Error transforming event: %v", err)
			return
		}
		if transformed == nil {
			p.logger.Debugf("Event rejected by transformer: %s.%s", database, table)
			return
		}
		change = transformed
	}

	if err := p.publisher.Publish(change); err != nil {
		p.logger.Errorf("Error publishing event: %v", err)
		return
	}
	p.logger.WithFields(logrus.Fields{
		"table":   config.TableKey(database, table),
		"changed": strings.Join(change.Changed, ","),
		"rows":    change.RowsSinceLastChange,
	}).Info("Published row change")
}

// Start reads binlog events until ctx is cancelled or a detector fails
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting event processor...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping event processor")
			return nil
		default:
		}

		event, err := p.reader.ReadEvent()
		if err != nil {
			// Timeouts just mean no events arrived
			if errors.Is(err, context.DeadlineExceeded) ||
				strings.Contains(err.Error(), "context deadline exceeded") {
				continue
			}
			p.logger.Errorf("Error reading binlog event: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if err := p.HandleEvent(event); err != nil {
			return err
		}
	}
}
