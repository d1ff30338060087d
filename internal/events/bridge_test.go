package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*rag.IngestResult)
	return res, args.Error(1)
}

func (m *mockDispatcher) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*rag.QueryResult)
	return res, args.Error(1)
}

// setup starts a server, a bridge in front of d and returns a client
// connection.
func setup(t *testing.T, d trigger.Dispatcher) (*nats.Conn, *Bridge) {
	t.Helper()
	server := startTestNATSServer(t)

	serverConn, err := Connect(server.ClientURL(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(serverConn.Close)

	bridge, err := NewBridge(serverConn, trigger.NewHandler(d, nil), Config{}, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() { _ = bridge.Stop() })

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc, bridge
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(nil, trigger.NewHandler(&mockDispatcher{}, nil), Config{}, nil)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{QueueGroup: "custom"}.withDefaults()
	assert.Equal(t, "rag.ingest", cfg.IngestSubject)
	assert.Equal(t, "rag.query", cfg.QuerySubject)
	assert.Equal(t, "rag.events", cfg.EventsSubject)
	assert.Equal(t, "custom", cfg.QueueGroup)
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
}

func TestBridge_IngestRoundTripAndEvent(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Ingest", mock.Anything, rag.IngestRequest{PDFPath: "/data/a.pdf"}).
		Return(&rag.IngestResult{SourceID: "/data/a.pdf", Ingested: 3}, nil)
	nc, _ := setup(t, d)

	events := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("rag.events.ingested", events)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	res, err := NewClient(nc, Config{}).Ingest(ctxTimeout(t), rag.IngestRequest{PDFPath: "/data/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ingested)
	assert.Equal(t, "/data/a.pdf", res.SourceID)

	select {
	case msg := <-events:
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, EventIngested, ev.Type)
		assert.Equal(t, 3, ev.Ingested)
		assert.Equal(t, "/data/a.pdf", ev.SourceID)
		assert.Empty(t, ev.ErrorKind)
	case <-time.After(5 * time.Second):
		t.Fatal("no ingested event")
	}
}

func TestBridge_QueryRoundTrip(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Query", mock.Anything, mock.MatchedBy(func(r rag.QueryRequest) bool {
		return r.Question == "why?" && r.TopK != nil && *r.TopK == 1
	})).Return(&rag.QueryResult{Answer: "because", Sources: []string{"a.pdf"}, NumContexts: 1}, nil)
	nc, _ := setup(t, d)

	res, err := NewClient(nc, Config{}).Query(ctxTimeout(t), rag.NewQueryRequest("why?", 1))
	require.NoError(t, err)
	assert.Equal(t, "because", res.Answer)
	assert.Equal(t, []string{"a.pdf"}, res.Sources)
	assert.Equal(t, 1, res.NumContexts)
}

func TestBridge_ErrorsKeepTheirKind(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Query", mock.Anything, mock.Anything).
		Return(nil, &errdefs.GenerationServiceError{Err: assert.AnError})
	nc, _ := setup(t, d)

	_, err := NewClient(nc, Config{}).Query(ctxTimeout(t), rag.NewQueryRequest("q", 5))
	require.Error(t, err)
	assert.Equal(t, errdefs.KindGenerationService, errdefs.KindOf(err))
}

func TestBridge_MalformedPayload(t *testing.T) {
	nc, _ := setup(t, &mockDispatcher{})

	msg, err := nc.RequestWithContext(ctxTimeout(t), "rag.query", []byte(`{"question":`))
	require.NoError(t, err)

	var resp trigger.QueryResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.True(t, resp.Failed())
	assert.Equal(t, errdefs.KindConfiguration, resp.ErrorKind)
	assert.Equal(t, []string{}, resp.Sources)
}

func TestBridge_StartTwice(t *testing.T) {
	_, bridge := setup(t, &mockDispatcher{})
	assert.Error(t, bridge.Start(context.Background()))
}

func TestBridge_StopWaitsForInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d := &mockDispatcher{}
	d.On("Ingest", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&rag.IngestResult{SourceID: "s", Ingested: 1}, nil)
	nc, bridge := setup(t, d)

	require.NoError(t, nc.Publish("rag.ingest", []byte(`{"pdf_path":"s"}`)))
	require.NoError(t, nc.Flush())
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the dispatcher")
	}

	stopped := make(chan struct{})
	go func() {
		_ = bridge.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned with a request in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestBridge_StopDeliversQueuedMessagesWithLiveContext(t *testing.T) {
	const n = 200
	var (
		mu        sync.Mutex
		handled   int
		cancelled int
	)
	d := &mockDispatcher{}
	d.On("Ingest", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			mu.Lock()
			defer mu.Unlock()
			handled++
			if ctx.Err() != nil {
				cancelled++
			}
		}).
		Return(&rag.IngestResult{SourceID: "s", Ingested: 1}, nil)
	nc, bridge := setup(t, d)

	for i := 0; i < n; i++ {
		require.NoError(t, nc.Publish("rag.ingest", []byte(`{"pdf_path":"s"}`)))
	}
	require.NoError(t, nc.Flush())

	require.NoError(t, bridge.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, handled)
	assert.Zero(t, cancelled)
}
