// Package tutor provides the client-side engine for real-time tutoring
// sessions: session provisioning, streaming generation (chat and comic), and
// the duplex voice channel, all merged into one shared transcript.
//
// The AI backend is an opaque collaborator reached over HTTP and WebSocket;
// this package never talks to a model provider directly.
package tutor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brightclass/tutorlive/pkg/core/config"
	"github.com/brightclass/tutorlive/pkg/core/reduce"
	"github.com/brightclass/tutorlive/pkg/core/transcript"
)

// User is the authenticated user as reported by the persistence layer.
type User struct {
	ID          string
	DisplayName string
}

// ProfileStore is the engine's only window into the persistence layer: who
// is signed in. CRUD lives elsewhere.
type ProfileStore interface {
	CurrentUser(ctx context.Context) (User, error)
}

// Client is the main entry point for the tutoring engine.
type Client struct {
	Sessions *SessionService
	Voice    *VoiceService

	// Internal
	baseURL    string
	apiKey     string
	httpClient *httpDoer
	logger     *slog.Logger
	cfg        config.Config
	profiles   ProfileStore

	transcript *transcript.Log

	// Generation supersession counter; see generate.go.
	genMu      sync.Mutex
	generation int64

	viewMu      sync.RWMutex
	view        reduce.View
	viewSubs    map[int]func(reduce.View)
	viewNextSub int
}

// NewClient creates a client. Settings default to config defaults; override
// with options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger: slog.Default(),
		cfg: config.Config{
			BackendBaseURL:      "http://localhost:8080",
			ProvisionTimeout:    10 * time.Second,
			StreamIdleTimeout:   60 * time.Second,
			VoiceConnectTimeout: 15 * time.Second,
			VoiceWriteTimeout:   5 * time.Second,
			DefaultVoiceID:      "classroom-default",
			AudioFrameBytes:     4096,
		},
		viewSubs: make(map[int]func(reduce.View)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = c.cfg.BackendBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPDoer()
	}

	c.transcript = transcript.NewLog(c.logger)
	c.Sessions = &SessionService{client: c}
	c.Voice = &VoiceService{client: c, state: VoiceStateIdle}
	return c
}

// Transcript returns the shared conversation log. All mutation goes through
// its methods; callers read via Turns() and Subscribe().
func (c *Client) Transcript() *transcript.Log {
	return c.transcript
}

// GenerationView returns the latest materialized view of the in-flight (or
// most recent) structured generation.
func (c *Client) GenerationView() reduce.View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// SubscribeView registers an observer for generation view updates. The
// returned function unregisters it.
func (c *Client) SubscribeView(fn func(reduce.View)) func() {
	c.viewMu.Lock()
	id := c.viewNextSub
	c.viewNextSub++
	c.viewSubs[id] = fn
	c.viewMu.Unlock()

	return func() {
		c.viewMu.Lock()
		delete(c.viewSubs, id)
		c.viewMu.Unlock()
	}
}

func (c *Client) setView(v reduce.View) {
	c.viewMu.Lock()
	c.view = v
	fns := make([]func(reduce.View), 0, len(c.viewSubs))
	for _, fn := range c.viewSubs {
		fns = append(fns, fn)
	}
	c.viewMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// NewChat resets the conversation: clears the transcript and the generation
// view, then provisions a fresh backend session. This is the only sanctioned
// way to obtain a second session on the same client.
func (c *Client) NewChat(ctx context.Context) error {
	c.transcript.Clear()
	c.setView(reduce.View{})
	return c.Sessions.ResetSession(ctx)
}

// nextGeneration bumps the supersession counter. Output from streams started
// under an older generation is silently ignored.
func (c *Client) nextGeneration() int64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.generation++
	return c.generation
}

func (c *Client) currentGeneration() int64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generation
}
