package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
func (NopSink) Close() error  { return nil }

// LogSink writes events to the structured log.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink builds a sink over the process logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.New().WithComponent("events")}
}

func (s *LogSink) Publish(ev Event) {
	fields := map[string]interface{}{
		"event_id": ev.ID,
		"tenant":   ev.Tenant,
		"run_id":   ev.RunID,
	}
	if ev.StepID != "" {
		fields["step_id"] = ev.StepID
	}
	if ev.Tool != "" {
		fields["tool"] = ev.Tool
	}
	if ev.Verdict != "" {
		fields["verdict"] = ev.Verdict
	}
	if ev.Detail != "" {
		fields["detail"] = ev.Detail
	}
	s.logger.Info(string(ev.Kind), fields)
}

func (s *LogSink) Close() error { return nil }

// NATSSink publishes events as JSON to a NATS subject, one subject
// per tenant under the configured prefix.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATSSink connects to a NATS server. prefix defaults to
// "dispatch.events".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	if prefix == "" {
		prefix = "dispatch.events"
	}
	conn, err := nats.Connect(url,
		nats.Name("dispatch"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSSink{
		conn:   conn,
		prefix: prefix,
		logger: logging.New().WithComponent("events"),
	}, nil
}

func (s *NATSSink) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	subject := s.prefix
	if ev.Tenant != "" {
		subject = s.prefix + "." + ev.Tenant
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		s.logger.Warn("event publish failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

func (s *NATSSink) Close() error {
	s.conn.Drain()
	s.conn.Close()
	return nil
}

// Fanout delivers each event to every wrapped sink.
type Fanout []Sink

func (f Fanout) Publish(ev Event) {
	for _, sink := range f {
		sink.Publish(ev)
	}
}

func (f Fanout) Close() error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
