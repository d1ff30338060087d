// Package events bridges the pipelines onto NATS. Requests arrive on the
// ingest and query subjects (queue-grouped so several replicas share load),
// replies carry the same JSON as the HTTP API, and completion events are
// published under the events subject.
//
// Subjects with the default configuration:
//
//	rag.ingest           request/reply, body rag.IngestRequest
//	rag.query            request/reply, body rag.QueryRequest
//	rag.events.ingested  Event after every ingest
//	rag.events.answered  Event after every query
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

// Event types.
const (
	EventIngested = "ingested"
	EventAnswered = "answered"
)

// Config names the subjects. Empty fields take the defaults.
type Config struct {
	IngestSubject string
	QuerySubject  string
	EventsSubject string
	QueueGroup    string
	// RequestTimeout bounds one pipeline run started from a message.
	RequestTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for queued messages.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IngestSubject == "" {
		c.IngestSubject = "rag.ingest"
	}
	if c.QuerySubject == "" {
		c.QuerySubject = "rag.query"
	}
	if c.EventsSubject == "" {
		c.EventsSubject = "rag.events"
	}
	if c.QueueGroup == "" {
		c.QueueGroup = "ragd"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Minute
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// Event is published after each pipeline run, successful or not.
type Event struct {
	Type        string    `json:"type"`
	SourceID    string    `json:"source_id,omitempty"`
	Ingested    int       `json:"ingested,omitempty"`
	Question    string    `json:"question,omitempty"`
	NumContexts int       `json:"num_contexts,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Time        time.Time `json:"time"`
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	nc, err := nats.Connect(url,
		nats.Name("ragd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Bridge serves trigger requests from NATS.
type Bridge struct {
	nc      *nats.Conn
	handler *trigger.Handler
	cfg     Config
	logger  *logging.Logger

	mu       sync.Mutex
	subs     []*nats.Subscription
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(nc *nats.Conn, handler *trigger.Handler, cfg Config, logger *logging.Logger) (*Bridge, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bridge{nc: nc, handler: handler, cfg: cfg.withDefaults(), logger: logger.Named("events")}, nil
}

// Start subscribes to the request subjects. Messages are handled
// concurrently until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs != nil {
		return fmt.Errorf("bridge already started")
	}
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for subject, fn := range map[string]nats.MsgHandler{
		b.cfg.IngestSubject: b.dispatch(b.handleIngest),
		b.cfg.QuerySubject:  b.dispatch(b.handleQuery),
	} {
		sub, err := b.nc.QueueSubscribe(subject, b.cfg.QueueGroup, fn)
		if err != nil {
			b.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
	}
	if err := b.nc.Flush(); err != nil {
		b.unsubscribeLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	b.logger.Info(ctx, "nats bridge listening",
		zap.String("ingest_subject", b.cfg.IngestSubject),
		zap.String("query_subject", b.cfg.QuerySubject),
		zap.String("queue_group", b.cfg.QueueGroup))
	return nil
}

// Stop drains the subscriptions, waits until they have delivered every
// pending message and then waits for in-flight requests. Contexts handed
// to handlers are cancelled only after all of them returned.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	closed := make([]<-chan nats.SubStatus, 0, len(subs))
	for _, sub := range subs {
		ch := sub.StatusChanged(nats.SubscriptionClosed)
		if err := sub.Drain(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		closed = append(closed, ch)
	}

	timeout := time.NewTimer(b.cfg.DrainTimeout)
	defer timeout.Stop()
wait:
	for _, ch := range closed {
		select {
		case <-ch:
		case <-timeout.C:
			b.logger.Warn(context.Background(), "subscription drain timed out",
				zap.Duration("timeout", b.cfg.DrainTimeout))
			if firstErr == nil {
				firstErr = nats.ErrDrainTimeout
			}
			break wait
		}
	}

	b.inflight.Wait()
	if b.cancel != nil {
		b.cancel()
	}
	return firstErr
}

func (b *Bridge) unsubscribeLocked() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

func (b *Bridge) dispatch(fn func(context.Context, *nats.Msg)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			ctx, cancel := context.WithTimeout(b.ctx, b.cfg.RequestTimeout)
			defer cancel()
			if id := msg.Header.Get(nats.MsgIdHdr); id != "" {
				ctx = logging.WithRequestID(ctx, id)
			}
			fn(ctx, msg)
		}()
	}
}

func (b *Bridge) handleIngest(ctx context.Context, msg *nats.Msg) {
	var req rag.IngestRequest
	var resp trigger.IngestResponse
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		resp = trigger.IngestResponse{Error: fmt.Sprintf("invalid request: %v", err), ErrorKind: errdefs.KindConfiguration}
	} else {
		resp = b.handler.Ingest(ctx, req)
	}
	b.reply(ctx, msg, resp)

	ev := Event{Type: EventIngested, SourceID: resp.SourceID, ErrorKind: resp.ErrorKind, Time: time.Now().UTC()}
	if resp.Ingested != nil {
		ev.Ingested = *resp.Ingested
	}
	b.publish(ctx, ev)
}

func (b *Bridge) handleQuery(ctx context.Context, msg *nats.Msg) {
	var req rag.QueryRequest
	var resp trigger.QueryResponse
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		resp = trigger.QueryResponse{Sources: []string{}, Error: fmt.Sprintf("invalid request: %v", err), ErrorKind: errdefs.KindConfiguration}
	} else {
		resp = b.handler.Query(ctx, req)
	}
	b.reply(ctx, msg, resp)

	b.publish(ctx, Event{
		Type:        EventAnswered,
		Question:    req.Question,
		NumContexts: resp.NumContexts,
		ErrorKind:   resp.ErrorKind,
		Time:        time.Now().UTC(),
	})
}

func (b *Bridge) reply(ctx context.Context, msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error(ctx, "marshal reply failed", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn(ctx, "nats reply failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (b *Bridge) publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error(ctx, "marshal event failed", zap.Error(err))
		return
	}
	subject := b.cfg.EventsSubject + "." + ev.Type
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Warn(ctx, "publish event failed", zap.String("subject", subject), zap.Error(err))
	}
}
