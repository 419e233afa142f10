package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/brightclass/tutorlive/pkg/core/latch"
)

// SessionService guarantees exactly one outstanding session-creation call
// per conversation lifetime. Provisioning is guarded by a latch acquired
// synchronously before any network work, so re-invocation from a re-rendering
// caller cannot create duplicate backend sessions.
type SessionService struct {
	client *Client

	guard latch.Latch

	mu        sync.Mutex
	sessionID string
	ownerID   string
}

// SessionID returns the provisioned session identifier, or "" while the
// session is not ready. Downstream operations must treat "" as not-ready.
func (s *SessionService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// OwnerID returns the cached authenticated user ID, or "" before the first
// successful provisioning.
func (s *SessionService) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID
}

// EnsureSession provisions the backend session at most once. Losing callers
// return immediately, whether or not the winning call has resolved yet. A
// failed attempt leaves the latch set: no automatic retry, the user starts a
// new chat instead.
func (s *SessionService) EnsureSession(ctx context.Context) error {
	if !s.guard.TryAcquire() {
		return nil
	}
	return s.provision(ctx)
}

// ResetSession clears the session and the latch, then provisions again.
// This is the only sanctioned way to obtain a second session ("new chat").
func (s *SessionService) ResetSession(ctx context.Context) error {
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
	s.guard.Reset()
	return s.EnsureSession(ctx)
}

func (s *SessionService) provision(ctx context.Context) error {
	c := s.client

	ownerID, err := s.resolveOwner(ctx)
	if err != nil {
		return NewProvisioningError("resolve current user", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProvisionTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"user_id": ownerID})
	if err != nil {
		return NewProvisioningError("encode session request", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return NewProvisioningError("build session request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewProvisioningError("create session", &TransportError{Op: "POST", URL: url, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewProvisioningError(
			fmt.Sprintf("create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return NewProvisioningError("decode session response", err)
	}
	if strings.TrimSpace(decoded.SessionID) == "" {
		return NewProvisioningError("backend returned an empty session id", nil)
	}

	s.mu.Lock()
	s.sessionID = decoded.SessionID
	s.mu.Unlock()

	c.logger.Debug("session provisioned", "session_id", decoded.SessionID)
	return nil
}

// resolveOwner fetches the authenticated user once and caches the ID for the
// client's lifetime.
func (s *SessionService) resolveOwner(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.ownerID
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	if s.client.profiles == nil {
		return "", nil
	}

	user, err := s.client.profiles.CurrentUser(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.ownerID = user.ID
	s.mu.Unlock()
	return user.ID, nil
}
