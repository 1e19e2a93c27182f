package binlog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/sirupsen/logrus"
)

// Options configures a Reader
type Options struct {
	Host          string
	Port          int
	User          string
	Password      string
	ServerID      uint32
	Flavor        string
	UseGTID       bool
	PositionFile  string
	StartPosition uint32
	ReadTimeout   time.Duration
}

// Reader streams binlog events from MySQL and persists its position
type Reader struct {
	syncer       *replication.BinlogSyncer
	streamer     *replication.BinlogStreamer
	position     mysql.Position
	positionFile string
	readTimeout  time.Duration
	logger       *logrus.Logger
}

// NewReader creates a new binlog reader resuming from the saved position, if any
func NewReader(opts Options, logger *logrus.Logger) (*Reader, error) {
	if opts.Flavor == "" {
		opts.Flavor = "mysql"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}

	// DECIMAL columns decode to decimal.Decimal and DATETIME/TIMESTAMP to
	// time.Time, which is what the row converter expects.
	cfg := replication.BinlogSyncerConfig{
		ServerID:   opts.ServerID,
		Flavor:     opts.Flavor,
		Host:       opts.Host,
		Port:       uint16(opts.Port),
		User:       opts.User,
		Password:   opts.Password,
		UseDecimal: true,
		ParseTime:  true,
	}

	if opts.UseGTID {
		logger.Info("GTID replication requested (currently using file:position format)")
	}

	position := mysql.Position{Pos: opts.StartPosition}
	if data, err := os.ReadFile(opts.PositionFile); err == nil && len(data) > 0 {
		position = ParsePosition(string(data), opts.StartPosition)
		logger.Infof("Loaded binlog position from file: %s:%d", position.Name, position.Pos)
	}

	syncer := replication.NewBinlogSyncer(cfg)
	streamer, err := syncer.StartSync(position)
	if err != nil {
		syncer.Close()
		return nil, fmt.Errorf("failed to start binlog sync: %w", err)
	}

	logger.Infof("Started binlog sync from position: %s:%d", position.Name, position.Pos)

	return &Reader{
		syncer:       syncer,
		streamer:     streamer,
		position:     position,
		positionFile: opts.PositionFile,
		readTimeout:  opts.ReadTimeout,
		logger:       logger,
	}, nil
}

// ParsePosition parses a saved "filename:position" string. Older files hold
// only a file name, in which case fallback is used as the offset.
func ParsePosition(s string, fallback uint32) mysql.Position {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx > 0 && idx < len(s)-1 {
		if pos, err := strconv.ParseUint(s[idx+1:], 10, 32); err == nil {
			return mysql.Position{Name: s[:idx], Pos: uint32(pos)}
		}
	}
	return mysql.Position{Name: s, Pos: fallback}
}

// FormatPosition is the inverse of ParsePosition
func FormatPosition(p mysql.Position) string {
	return fmt.Sprintf("%s:%d", p.Name, p.Pos)
}

// SavePosition saves the given binlog position to the position file
func (r *Reader) SavePosition(name string, pos uint32) error {
	if name == "" {
		name = r.position.Name
	}
	if name == "" {
		return nil
	}
	p := mysql.Position{Name: name, Pos: pos}
	if err := os.WriteFile(r.positionFile, []byte(FormatPosition(p)), 0644); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	r.position = p
	return nil
}

// Position returns the position after the last event read
func (r *Reader) Position() mysql.Position {
	return r.position
}

// ReadEvent reads the next binlog event, waiting at most the read timeout
func (r *Reader) ReadEvent() (*replication.BinlogEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.readTimeout)
	defer cancel()

	event, err := r.streamer.GetEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get binlog event: %w", err)
	}

	if e, ok := event.Event.(*replication.RotateEvent); ok {
		if err := r.SavePosition(string(e.NextLogName), uint32(e.Position)); err != nil {
			r.logger.Warnf("Failed to save position: %v", err)
		}
	} else if event.Header.LogPos > 0 {
		if err := r.SavePosition(r.position.Name, event.Header.LogPos); err != nil {
			r.logger.Warnf("Failed to save position: %v", err)
		}
	}

	return event, nil
}

// Close closes the binlog reader
func (r *Reader) Close() {
	if r.syncer != nil {
		r.syncer.Close()
	}
}
