package tutor

import (
	"log/slog"
	"net/http"

	"github.com/brightclass/tutorlive/pkg/core/config"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the AI backend base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIKey sets the bearer token sent to the backend.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithConfig replaces the engine configuration wholesale.
func WithConfig(cfg config.Config) ClientOption {
	return func(c *Client) {
		c.cfg = cfg
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = &httpDoer{client: client}
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithProfileStore injects the persistence layer's authenticated-user lookup.
func WithProfileStore(store ProfileStore) ClientOption {
	return func(c *Client) {
		c.profiles = store
	}
}
