package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes alert events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *AlertEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background
// flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN enables TLS when ?secure=true is in the DSN; enforce it
	// here as well so managed deployments on TLS-only ports connect.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *AlertEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an alert event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *AlertEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping alert event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*AlertEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain remaining events from buffer
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO alert_events (
			request_id, monitor_id, alert_id, event_id, timestamp,
			source, event_type, content_preview, content_hash, content_size,
			blocked, block_reason,
			matched, severity, title, rule_ids, rule_labels,
			reply_sent, reply_reason, forwarded_to_ai,
			latency_ms, ingest_source
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var blockedUint8, matchedUint8, replyUint8, forwardedUint8 uint8
		if e.Blocked {
			blockedUint8 = 1
		}
		if e.Matched {
			matchedUint8 = 1
		}
		if e.ReplySent {
			replyUint8 = 1
		}
		if e.ForwardedToAI {
			forwardedUint8 = 1
		}

		if err := batch.Append(
			e.RequestID,
			e.MonitorID,
			e.AlertID,
			e.EventID,
			e.Timestamp,
			e.Source,
			e.EventType,
			e.ContentPreview,
			e.ContentHash,
			e.ContentSize,
			blockedUint8,
			e.BlockReason,
			matchedUint8,
			e.Severity,
			e.Title,
			e.RuleIDs,
			e.RuleLabels,
			replyUint8,
			e.ReplyReason,
			forwardedUint8,
			e.LatencyMs,
			e.IngestSource,
		); err != nil {
			w.logger.Error("clickhouse append alert event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback AlertWriter for local development.
// It logs events instead of persisting them.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *AlertEvent) {
	w.logger.Info("alert event",
		zap.String("request_id", event.RequestID),
		zap.String("monitor_id", event.MonitorID),
		zap.Bool("matched", event.Matched),
		zap.String("severity", event.Severity),
		zap.Bool("blocked", event.Blocked),
		zap.Strings("rule_ids", event.RuleIDs),
	)
}

func (w *LogWriter) Close() {}
