package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/vigil-hq/vigil/internal/config"
	"github.com/vigil-hq/vigil/internal/engine"
	"github.com/vigil-hq/vigil/internal/pipeline"
	"github.com/vigil-hq/vigil/internal/store"
	"go.uber.org/zap"
)

// Message is the wire format for events arriving over Kafka. The monitor
// is identified by ID rather than API key; broker access is the trust
// boundary on this path.
type Message struct {
	MonitorID string       `json:"monitor_id"`
	Event     EventPayload `json:"event"`
}

// EventPayload mirrors the HTTP event request body.
type EventPayload struct {
	ID        string                      `json:"id,omitempty"`
	Timestamp *time.Time                  `json:"timestamp,omitempty"`
	Source    string                      `json:"source,omitempty"`
	Type      string                      `json:"type,omitempty"`
	Content   string                      `json:"content"`
	Metadata  map[string]engine.MetaValue `json:"metadata,omitempty"`
}

// Consumer reads events from a Kafka topic and feeds them through the
// evaluation pipeline. Offsets are committed only after processing, so a
// crash mid-batch replays rather than drops events.
type Consumer struct {
	reader    *kafka.Reader
	store     *store.Store
	processor *pipeline.Processor
	logger    *zap.Logger

	// monitors are cached briefly to avoid a Postgres round trip per message.
	cache    map[string]cachedMonitor
	cacheTTL time.Duration
}

type cachedMonitor struct {
	monitor   pipeline.Monitor
	enabled   bool
	expiresAt time.Time
}

// Config holds Kafka consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer builds a consumer for the given brokers and topic.
func NewConsumer(cfg Config, st *store.Store, proc *pipeline.Processor, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // explicit commits
		}),
		store:     st,
		processor: proc,
		logger:    logger,
		cache:     make(map[string]cachedMonitor),
		cacheTTL:  30 * time.Second,
	}
}

// Run consumes messages until the context is cancelled. It always returns
// a non-nil error; context.Canceled signals a clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group", c.reader.Config().GroupID))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Error("kafka fetch failed", zap.Error(err))
			return err
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Error("kafka commit failed", zap.Error(err))
		}
	}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handle processes a single message. Malformed messages are logged and
// skipped; they would never succeed on retry.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.logger.Warn("skipping malformed kafka message",
			zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	if m.MonitorID == "" || m.Event.Content == "" {
		c.logger.Warn("skipping kafka message without monitor_id or content",
			zap.Int64("offset", msg.Offset))
		return
	}

	mon, enabled, err := c.lookupMonitor(ctx, m.MonitorID)
	if err != nil {
		c.logger.Error("monitor lookup failed",
			zap.String("monitor_id", m.MonitorID), zap.Error(err))
		return
	}
	if mon == nil {
		c.logger.Warn("skipping event for unknown monitor",
			zap.String("monitor_id", m.MonitorID))
		return
	}
	if !enabled {
		c.logger.Debug("skipping event for disabled monitor",
			zap.String("monitor_id", m.MonitorID))
		return
	}

	ev := eventFromPayload(m.Event)
	out := c.processor.Process(ctx, *mon, ev, "kafka")
	c.logger.Debug("kafka event processed",
		zap.String("monitor_id", m.MonitorID),
		zap.String("request_id", out.RequestID),
		zap.Bool("matched", out.Result.Matched))
}

func (c *Consumer) lookupMonitor(ctx context.Context, id string) (*pipeline.Monitor, bool, error) {
	if entry, ok := c.cache[id]; ok && time.Now().Before(entry.expiresAt) {
		return &entry.monitor, entry.enabled, nil
	}

	m, err := c.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		return nil, false, nil
	}

	cfg := &config.MonitorConfig{}
	if len(m.Config) > 0 && string(m.Config) != "{}" && string(m.Config) != "null" {
		if err := json.Unmarshal(m.Config, cfg); err != nil {
			return nil, false, err
		}
	}

	mon := pipeline.Monitor{ID: m.ID, Config: cfg}
	c.cache[id] = cachedMonitor{monitor: mon, enabled: m.Enabled, expiresAt: time.Now().Add(c.cacheTTL)}
	return &mon, m.Enabled, nil
}

func eventFromPayload(p EventPayload) *engine.Event {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := time.Now()
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	return &engine.Event{
		ID:        id,
		Timestamp: ts,
		Source:    p.Source,
		Type:      p.Type,
		Content:   p.Content,
		Metadata:  p.Metadata,
	}
}
