package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/resilience"
)

// SessionEvent is the wire form of one session lifecycle event.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	JobID     string    `json:"job_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	ResultURL string    `json:"result_url,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher struct {
	conn    *nats.Conn
	subject string
	guard   *resilience.Guard
	now     func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Guard                *resilience.Guard
}

func New(url, subject string) (*Publisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("virtual-fitting"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:    conn,
		subject: strings.TrimSuffix(subject, "."),
		guard:   options.Guard,
		now:     time.Now,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// PublishSessionEvent sends the event to <subject>.<eventType>.
func (p *Publisher) PublishSessionEvent(ctx context.Context, eventType string, snapshot domain.SessionState) error {
	payload, err := json.Marshal(buildEvent(eventType, snapshot, p.now()))
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	subject := eventSubject(p.subject, eventType)

	call := func(_ context.Context) error {
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.guard != nil {
		err = p.guard.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSessionEvents delivers every event under the subject until ctx
// is done.
func (p *Publisher) SubscribeSessionEvents(ctx context.Context, handler func(context.Context, SessionEvent) error) error {
	sub, err := p.conn.Subscribe(p.subject+".>", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		var ev SessionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("session_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ev); err != nil {
			slog.Error("session_event_handler_failed", "type", ev.Type, "session_id", ev.SessionID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func buildEvent(eventType string, snapshot domain.SessionState, at time.Time) SessionEvent {
	ev := SessionEvent{
		Type:      eventType,
		SessionID: snapshot.ID,
		ResultURL: snapshot.ResultURL,
		At:        at.UTC(),
	}
	if snapshot.Job != nil {
		ev.JobID = snapshot.Job.ID
		ev.Status = string(snapshot.Job.Status)
	}
	if snapshot.Error != nil {
		ev.ErrorKind = string(snapshot.Error.Kind)
	}
	return ev
}

func eventSubject(base, eventType string) string {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	return base + "." + eventType
}
