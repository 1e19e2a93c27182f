package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"mysql-rowchange/internal/models"
)

// Publisher publishes row change events to NATS, one subject per table
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *logrus.Logger
}

// NewPublisher connects to NATS
func NewPublisher(url, subjectPrefix string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("mysql-rowchange"),
		nats.MaxReconnects(maxReconnect),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", url)
	return NewPublisherWithConn(conn, subjectPrefix, logger), nil
}

// NewPublisherWithConn wraps an existing connection
func NewPublisherWithConn(conn *nats.Conn, subjectPrefix string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

// Encode returns the wire form of an event. Raw JSON from a script
// transformation wins over the struct.
func Encode(event *models.RowChangeEvent) ([]byte, error) {
	if len(event.RawJSON) > 0 {
		return event.RawJSON, nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Publish publishes a row change event on <prefix>.<database>.<table>
func (p *Publisher) Publish(event *models.RowChangeEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}

	subject := event.Subject(p.subjectPrefix)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	p.logger.Debugf("Published %s change for %s.%s on %s", event.Type, event.Database, event.Table, subject)
	return nil
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warnf("Failed to drain NATS connection: %v", err)
		p.conn.Close()
	}
}

// GetConn returns the underlying NATS connection
func (p *Publisher) GetConn() *nats.Conn {
	return p.conn
}
