package storage

import "time"

// AlertWriter is the interface for writing alert history events.
// Write() must NEVER block the caller.
type AlertWriter interface {
	Write(event *AlertEvent)
	Close()
}

// AlertEvent represents one evaluation outcome to be persisted to the
// alert history. Unmatched and sanitizer-blocked evaluations are recorded
// too, so the UI can always explain why an event produced no alert.
type AlertEvent struct {
	RequestID      string
	MonitorID      string
	AlertID        string // empty when no alert was rendered
	EventID        string
	Timestamp      time.Time
	Source         string
	EventType      string
	ContentPreview string // first 500 chars
	ContentHash    string // SHA256 of full content
	ContentSize    uint32
	Blocked        bool
	BlockReason    string
	Matched        bool
	Severity       string
	Title          string
	RuleIDs        []string
	RuleLabels     []string
	ReplySent      bool
	ReplyReason    string
	ForwardedToAI  bool
	LatencyMs      float32
	IngestSource   string // "api" or "kafka"
}

// PreviewLength is the max chars stored in content_preview.
const PreviewLength = 500

// TruncateContent returns the first N characters (runes) of event content
// for preview storage. It never splits a multi-byte UTF-8 character.
func TruncateContent(content string, maxLen int) string {
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen])
}
