// internal/kolosal/client.go
// Package kolosal drives a kolosal-server instance: it keeps the process alive,
// registers engines, follows their downloads and runs chat completions.
package kolosal

import (
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/kolosalctl/internal/supervisor"
	"github.com/mwiater/kolosalctl/internal/transport"
)

const (
	defaultCheckInterval = 1 * time.Second
	defaultCheckTimeout  = 5 * time.Second
	defaultServerPort    = 8080
)

// ServerConnection is where the server lives and how to authenticate. It is never
// modified after construction.
type ServerConnection struct {
	BaseURL string
	APIKey  string
}

// NewConnection normalises baseURL and returns a ServerConnection.
func NewConnection(baseURL, apiKey string) ServerConnection {
	return ServerConnection{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
	}
}

// Persister records a newly registered engine in the server's own configuration.
type Persister interface {
	Persist(engineID, path string) error
}

// Recorder receives orchestration events. The metrics package provides the
// prometheus-backed implementation.
type Recorder interface {
	HealthCheck(healthy bool)
	DownloadPoll(state string)
	StreamChunk()
	StreamMalformed()
	ServerSpawn(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) HealthCheck(bool)    {}
func (nopRecorder) DownloadPoll(string) {}
func (nopRecorder) StreamChunk()        {}
func (nopRecorder) StreamMalformed()    {}
func (nopRecorder) ServerSpawn(string)  {}

// Client talks to one kolosal-server.
type Client struct {
	conn          ServerConnection
	http          *transport.Client
	sup           *supervisor.Supervisor
	persister     Persister
	rec           Recorder
	checkInterval time.Duration
	checkTimeout  time.Duration
	gen           GenerationParams
}

// Option customises a Client.
type Option func(*Client)

// WithSupervisor enables StartServer and StopServer.
func WithSupervisor(s *supervisor.Supervisor) Option { return func(c *Client) { c.sup = s } }

// WithPersister records successful registrations.
func WithPersister(p Persister) Option { return func(c *Client) { c.persister = p } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithCheckInterval changes how often WaitForReady checks health.
func WithCheckInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.checkInterval = d
		}
	}
}

// WithGeneration overrides the chat generation parameters.
func WithGeneration(g GenerationParams) Option { return func(c *Client) { c.gen = g } }

// New returns a Client for conn that sends its requests through tr.
func New(conn ServerConnection, tr *transport.Client, opts ...Option) *Client {
	c := &Client{
		conn:          conn,
		http:          tr,
		rec:           nopRecorder{},
		checkInterval: defaultCheckInterval,
		checkTimeout:  defaultCheckTimeout,
		gen:           DefaultGeneration(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if c.conn.APIKey != "" {
		h["X-API-Key"] = c.conn.APIKey
	}
	return h
}

func (c *Client) streamHeaders() map[string]string {
	h := c.headers()
	if c.conn.APIKey != "" {
		h["Authorization"] = "Bearer " + c.conn.APIKey
	}
	return h
}

func (c *Client) get(path, route string) transport.Request {
	return transport.Request{Method: http.MethodGet, URL: c.conn.BaseURL + path, Headers: c.headers(), Route: route}
}

func (c *Client) post(path, route string, body []byte) transport.Request {
	return transport.Request{Method: http.MethodPost, URL: c.conn.BaseURL + path, Body: body, Headers: c.headers(), Route: route}
}
