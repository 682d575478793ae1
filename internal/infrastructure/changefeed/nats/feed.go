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

	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/infrastructure/resilience"
)

// Feed publishes document change events on <prefix>.<kind> subjects and
// fans them out to every subscriber.
type Feed struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, prefix string, options Options) (*Feed, error) {
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
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("loan-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Feed{
		conn:     conn,
		prefix:   normalizePrefix(prefix),
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (f *Feed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *Feed) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	subject := f.subject(event.Kind)

	err = f.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := f.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Subscribe delivers every change event to handler until ctx is done.
func (f *Feed) Subscribe(ctx context.Context, handler func(context.Context, domain.ChangeEvent) error) error {
	return f.consume(ctx, "", handler)
}

// SubscribeGroup is Subscribe with load balancing across members of group.
func (f *Feed) SubscribeGroup(ctx context.Context, group string, handler func(context.Context, domain.ChangeEvent) error) error {
	if strings.TrimSpace(group) == "" {
		return errors.New("nats queue group is required")
	}
	return f.consume(ctx, group, handler)
}

// Group returns a subscriber whose Subscribe joins the named queue group.
func (f *Feed) Group(name string) *GroupSubscriber {
	return &GroupSubscriber{feed: f, group: name}
}

type GroupSubscriber struct {
	feed  *Feed
	group string
}

func (g *GroupSubscriber) Subscribe(ctx context.Context, handler func(context.Context, domain.ChangeEvent) error) error {
	return g.feed.SubscribeGroup(ctx, g.group, handler)
}

func (f *Feed) consume(ctx context.Context, group string, handler func(context.Context, domain.ChangeEvent) error) error {
	onMessage := func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			f.logger.Warn("change_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			f.logger.Warn("change_event_handler_failed",
				"kind", event.Kind,
				"document_id", event.DocumentID,
				"error", err,
			)
		}
	}

	wildcard := f.prefix + ".>"
	var (
		sub *nats.Subscription
		err error
	)
	if group == "" {
		sub, err = f.conn.Subscribe(wildcard, onMessage)
	} else {
		sub, err = f.conn.QueueSubscribe(wildcard, group, onMessage)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := f.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := f.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (f *Feed) subject(kind domain.ChangeKind) string {
	return f.prefix + "." + string(kind)
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return "intake.changes"
	}
	return prefix
}

func decodeEvent(data []byte) (domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if event.Kind == "" || event.DocumentID == "" {
		return domain.ChangeEvent{}, errors.New("change event is missing kind or document id")
	}
	return event, nil
}
