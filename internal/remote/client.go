// Package remote is the client of the remote to-do GraphQL service.
//
// Every successful write re-runs the list query and hands the fresh list to
// the observers registered with [Client.Observe].
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/todo"
)

// APIKeyHeader carries the static API key on every request.
const APIKeyHeader = "x-api-key"

const (
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second
)

// Config configures [New].
type Config struct {
	// Endpoint is the GraphQL URL.
	Endpoint string

	APIKey string

	// Timeout bounds one HTTP exchange. Defaults to 60s.
	Timeout time.Duration

	// HTTPClient replaces the default client. Timeout is ignored when set.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// ListResult is one list query outcome delivered to observers.
type ListResult struct {
	Todos []todo.Record
	Err   error
}

// Client talks to one GraphQL endpoint.
//
// # Concurrency
//
// Safe for concurrent use.
type Client struct {
	gql    *graphql.Client
	apiKey string
	log    *zap.Logger

	mu        sync.Mutex
	next      uint64
	observers map[uint64]chan ListResult
}

// New returns a client for cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("remote: endpoint is required")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = defaultClient(cfg.Timeout)
	}

	httpClient = withStatusCheck(httpClient)

	gql := graphql.NewClient(cfg.Endpoint, graphql.WithHTTPClient(httpClient))
	gql.Log = func(s string) { log.Debug(s) }

	return &Client{
		gql:       gql,
		apiKey:    cfg.APIKey,
		log:       log,
		observers: make(map[uint64]chan ListResult),
	}, nil
}

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	dialer := &net.Dialer{Timeout: defaultConnectTimeout}

	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: defaultTLSTimeout,
		},
		Timeout: timeout,
	}
}

// withStatusCheck returns a shallow copy of c whose transport reports
// rejected credentials as [ErrUnauthorized].
func withStatusCheck(c *http.Client) *http.Client {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	wrapped := *c
	wrapped.Transport = statusTransport{next: next}

	return &wrapped
}

type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		_ = res.Body.Close()

		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, res.StatusCode)
	}

	return res, nil
}

func (c *Client) run(ctx context.Context, op string, req *graphql.Request, resp any) error {
	req.Header.Set(APIKeyHeader, c.apiKey)

	err := c.gql.Run(ctx, req, resp)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	return nil
}

// Observe registers a list observer. The channel holds the newest result
// only: an unread result is replaced by a fresher one. cancel stops
// delivery and closes the channel; it is idempotent.
func (c *Client) Observe() (<-chan ListResult, func()) {
	ch := make(chan ListResult, 1)

	c.mu.Lock()
	c.next++
	id := c.next
	c.observers[id] = ch
	c.mu.Unlock()

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()

			close(ch)
		})
	}

	return ch, cancel
}

func (c *Client) publish(res ListResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.observers {
		select {
		case <-ch:
		default:
		}

		ch <- res
	}
}

// refetch re-runs the list query after a write and publishes the outcome.
func (c *Client) refetch(ctx context.Context) {
	todos, err := c.ListTodos(ctx)
	if err != nil {
		c.log.Error("refetch after write failed", zap.Error(err))
	}

	c.publish(ListResult{Todos: todos, Err: err})
}
