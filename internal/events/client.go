package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

// Client sends requests to a Bridge. It implements trigger.Dispatcher, so a
// remote ragd can sit behind any local surface.
type Client struct {
	nc  *nats.Conn
	cfg Config
}

var _ trigger.Dispatcher = (*Client)(nil)

// NewClient returns a client using cfg's subjects.
func NewClient(nc *nats.Conn, cfg Config) *Client {
	return &Client{nc: nc, cfg: cfg.withDefaults()}
}

// Ingest implements trigger.Dispatcher.
func (c *Client) Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	var resp trigger.IngestResponse
	if err := c.request(ctx, c.cfg.IngestSubject, req, &resp); err != nil {
		return nil, err
	}
	if resp.Failed() {
		return nil, errdefs.FromKind(resp.ErrorKind, resp.Error)
	}
	res := &rag.IngestResult{SourceID: resp.SourceID}
	if resp.Ingested != nil {
		res.Ingested = *resp.Ingested
	}
	return res, nil
}

// Query implements trigger.Dispatcher.
func (c *Client) Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error) {
	var resp trigger.QueryResponse
	if err := c.request(ctx, c.cfg.QuerySubject, req, &resp); err != nil {
		return nil, err
	}
	if resp.Failed() {
		return nil, errdefs.FromKind(resp.ErrorKind, resp.Error)
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	return &rag.QueryResult{Answer: resp.Answer, Sources: resp.Sources, NumContexts: resp.NumContexts}, nil
}

func (c *Client) request(ctx context.Context, subject string, req, out any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
