// Package logging writes the JSON audit trail of keys handed out and
// decryptions attempted. Raw keys and plaintext never reach the sink: events
// carry key fingerprints, and reasons and metadata pass through redact.
package logging

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/RowanDark/magiccipher/internal/redact"
)

// EventType names what happened in an audit record.
type EventType string

const (
	EventKeyIssued       EventType = "key_issued"
	EventKeyStored       EventType = "key_stored"
	EventKeyDeleted      EventType = "key_deleted"
	EventDecrypt         EventType = "decrypt"
	EventDecryptRejected EventType = "decrypt_rejected"
	EventSquareIssued    EventType = "square_issued"
	EventRPCDenied       EventType = "rpc_denied"
	EventServerLifecycle EventType = "server_lifecycle"
)

type Decision string

const (
	DecisionInfo  Decision = "info"
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	RequestID string         `json:"request_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Decision  Decision       `json:"decision,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Option configures where an AuditLogger writes.
type Option func(*sinks) error

type sinks struct {
	stdout  bool
	writers []io.Writer
	files   []*os.File
}

func (s *sinks) closeFiles() {
	for _, f := range s.files {
		_ = f.Close()
	}
}

// WithWriter adds w as a sink.
func WithWriter(w io.Writer) Option {
	return func(s *sinks) error {
		if w == nil {
			return errors.New("writer cannot be nil")
		}
		s.writers = append(s.writers, w)
		return nil
	}
}

// WithFile appends events to path, creating it owner-readable only.
func WithFile(path string) Option {
	return func(s *sinks) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("file path cannot be empty")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.writers = append(s.writers, f)
		s.files = append(s.files, f)
		return nil
	}
}

// WithoutStdout drops the default stdout sink.
func WithoutStdout() Option {
	return func(s *sinks) error {
		s.stdout = false
		return nil
	}
}

// AuditLogger serialises events from one component. It is safe for
// concurrent use.
type AuditLogger struct {
	component string

	mu    sync.Mutex
	enc   *json.Encoder
	files []*os.File
}

// NewAuditLogger writes events for component to stdout plus any configured
// sinks.
func NewAuditLogger(component string, opts ...Option) (*AuditLogger, error) {
	s := &sinks{stdout: true}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.closeFiles()
			return nil, err
		}
	}
	writers := s.writers
	if s.stdout {
		writers = append([]io.Writer{os.Stdout}, writers...)
	}
	if len(writers) == 0 {
		return nil, errors.New("no writers configured for audit logger")
	}

	enc := json.NewEncoder(io.MultiWriter(writers...))
	enc.SetEscapeHTML(false)
	return &AuditLogger{component: component, enc: enc, files: s.files}, nil
}

// Close closes any files opened by WithFile. Emit fails afterwards only if
// the remaining sinks do.
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// Emit stamps, redacts and writes event.
func (l *AuditLogger) Emit(event AuditEvent) error {
	if l == nil {
		return errors.New("nil audit logger")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.Component == "" {
		event.Component = l.component
	}
	event.Reason = redact.String(event.Reason)
	if len(event.Metadata) > 0 {
		event.Metadata = redact.Map(event.Metadata)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}
