package tutor

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brightclass/tutorlive/pkg/core/transcript"
)

// VoiceState is the lifecycle of the duplex voice channel.
type VoiceState string

const (
	VoiceStateIdle          VoiceState = "idle"
	VoiceStateConnecting    VoiceState = "connecting"
	VoiceStateConnected     VoiceState = "connected"
	VoiceStateDisconnecting VoiceState = "disconnecting"
	VoiceStateDisconnected  VoiceState = "disconnected"
	VoiceStateError         VoiceState = "error"
)

// AudioSource supplies raw outbound microphone audio. Read blocks until data
// is available; io.EOF ends capture cleanly.
type AudioSource interface {
	Read(p []byte) (int, error)
}

// AudioSink receives raw inbound audio for playback.
type AudioSink interface {
	Write(p []byte) (int, error)
}

// VoiceConnectParams configures one voice connection.
type VoiceConnectParams struct {
	// VoiceID selects the synthesized voice; empty uses the configured default.
	VoiceID string
	// Context is free-form tutoring context forwarded in the hello message.
	Context string

	Source AudioSource
	Sink   AudioSink
}

// VoiceService runs the bidirectional voice channel: microphone audio out,
// synthesized audio and transcription events in. One connection at a time;
// transcriptions land in the shared conversation log as complete turns.
type VoiceService struct {
	client *Client

	mu    sync.Mutex
	state VoiceState
	conn  *voiceConn
	// attempt identifies the in-flight Connect so a Disconnect issued during
	// the handshake aborts the right one.
	attempt string

	muted atomic.Bool
}

// voiceConn is one live websocket connection and its goroutine plumbing.
type voiceConn struct {
	id string
	ws *websocket.Conn

	writeMu     sync.Mutex
	intentional atomic.Bool
	stopCapture chan struct{}
	captureOnce sync.Once
	readDone    chan struct{}
}

func (vc *voiceConn) haltCapture() {
	vc.captureOnce.Do(func() { close(vc.stopCapture) })
}

type voiceHello struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	VoiceID   string `json:"voice_id"`
	Context   string `json:"context,omitempty"`
}

type voiceEvent struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// State returns the current channel state.
func (s *VoiceService) State() VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Muted reports whether outbound audio is currently suppressed.
func (s *VoiceService) Muted() bool {
	return s.muted.Load()
}

// Connect dials the voice channel and starts the capture and receive loops.
// Requires a provisioned session; rejected without touching the websocket
// when none exists or when a connection is already active.
func (s *VoiceService) Connect(ctx context.Context, params VoiceConnectParams) error {
	if params.Source == nil || params.Sink == nil {
		return NewInvalidRequestError("voice connect requires an audio source and sink")
	}
	sessionID := s.client.Sessions.SessionID()
	if sessionID == "" {
		return NewInvalidRequestError("session is not ready; voice requires a provisioned session")
	}

	s.mu.Lock()
	switch s.state {
	case VoiceStateConnecting, VoiceStateConnected:
		s.mu.Unlock()
		return NewInvalidRequestError("voice channel is already active")
	}
	attempt := uuid.NewString()
	s.state = VoiceStateConnecting
	s.attempt = attempt
	s.mu.Unlock()

	ws, err := s.dial(ctx)
	if err != nil {
		s.failAttempt(attempt)
		return NewVoiceError("dial voice channel", err)
	}

	voiceID := params.VoiceID
	if voiceID == "" {
		voiceID = s.client.cfg.DefaultVoiceID
	}
	if err := s.handshake(ws, voiceHello{
		Type:      "hello",
		SessionID: sessionID,
		UserID:    s.client.Sessions.OwnerID(),
		VoiceID:   voiceID,
		Context:   params.Context,
	}); err != nil {
		ws.Close()
		s.failAttempt(attempt)
		return NewVoiceError("voice handshake", err)
	}

	vc := &voiceConn{
		id:          attempt,
		ws:          ws,
		stopCapture: make(chan struct{}),
		readDone:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.state != VoiceStateConnecting || s.attempt != attempt {
		// Disconnected (or superseded) while the handshake was in flight.
		s.mu.Unlock()
		ws.Close()
		return NewVoiceError("voice connect aborted", nil)
	}
	s.state = VoiceStateConnected
	s.conn = vc
	s.muted.Store(false)
	s.mu.Unlock()

	go s.readLoop(vc, params.Sink)
	go s.captureLoop(vc, params.Source)

	s.client.logger.Debug("voice channel connected", "connection_id", vc.id, "voice_id", voiceID)
	return nil
}

// ToggleMute flips outbound audio suppression. Inbound audio and
// transcriptions are unaffected. Only valid while connected.
func (s *VoiceService) ToggleMute() (bool, error) {
	s.mu.Lock()
	if s.state != VoiceStateConnected {
		s.mu.Unlock()
		return false, NewInvalidRequestError("mute requires an active voice connection")
	}
	s.mu.Unlock()

	muted := !s.muted.Load()
	s.muted.Store(muted)
	return muted, nil
}

// Disconnect tears the channel down and waits for the receive loop to drain.
// Safe to call from any state, any number of times.
func (s *VoiceService) Disconnect() error {
	s.mu.Lock()
	vc := s.conn
	if vc == nil {
		// No live connection. Idle stays idle; every other state resolves to
		// disconnected. Invalidating the attempt makes a handshake still in
		// flight abandon its socket.
		if s.state != VoiceStateIdle {
			s.attempt = ""
			s.state = VoiceStateDisconnected
		}
		s.mu.Unlock()
		return nil
	}
	s.state = VoiceStateDisconnecting
	s.mu.Unlock()

	vc.intentional.Store(true)
	vc.haltCapture()

	vc.writeMu.Lock()
	vc.ws.SetWriteDeadline(time.Now().Add(s.client.cfg.VoiceWriteTimeout))
	vc.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect"))
	vc.writeMu.Unlock()
	vc.ws.Close()

	<-vc.readDone
	return nil
}

func (s *VoiceService) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := s.voiceURL()
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: s.client.cfg.VoiceConnectTimeout}
	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &TransportError{Op: "DIAL", URL: wsURL, Err: err}
	}
	if resp != nil {
		resp.Body.Close()
	}
	return ws, nil
}

// voiceURL derives the ws(s) endpoint from the HTTP base URL.
func (s *VoiceService) voiceURL() (string, error) {
	u, err := url.Parse(s.client.baseURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/voice"
	if s.client.apiKey != "" {
		q := u.Query()
		q.Set("token", s.client.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// handshake sends the hello and waits for the backend's ready event.
func (s *VoiceService) handshake(ws *websocket.Conn, hello voiceHello) error {
	timeout := s.client.cfg.VoiceConnectTimeout

	ws.SetWriteDeadline(time.Now().Add(timeout))
	if err := ws.WriteJSON(hello); err != nil {
		return err
	}

	ws.SetReadDeadline(time.Now().Add(timeout))
	var event voiceEvent
	if err := ws.ReadJSON(&event); err != nil {
		return err
	}
	ws.SetReadDeadline(time.Time{})

	switch event.Type {
	case "ready":
		return nil
	case "error":
		return NewAPIError("voice backend rejected the session: " + event.Message)
	default:
		return NewAPIError("unexpected voice handshake event: " + event.Type)
	}
}

// readLoop drains the websocket: binary frames go to the sink, text frames
// are control and transcription events. Owns the terminal state transition.
func (s *VoiceService) readLoop(vc *voiceConn, sink AudioSink) {
	defer close(vc.readDone)

	for {
		msgType, data, err := vc.ws.ReadMessage()
		if err != nil {
			vc.haltCapture()
			if vc.intentional.Load() {
				s.finish(vc, VoiceStateDisconnected)
			} else {
				s.client.logger.Warn("voice channel dropped", "connection_id", vc.id, "error", err)
				s.finish(vc, VoiceStateError)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if _, err := sink.Write(data); err != nil {
				s.client.logger.Warn("audio sink write failed", "connection_id", vc.id, "error", err)
			}
		case websocket.TextMessage:
			s.handleEvent(vc, data)
		}
	}
}

func (s *VoiceService) handleEvent(vc *voiceConn, data []byte) {
	var event voiceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.client.logger.Warn("dropping malformed voice event", "connection_id", vc.id, "error", err)
		return
	}

	switch event.Type {
	case "transcript":
		role := transcript.RoleAssistant
		if event.Role == string(transcript.RoleUser) {
			role = transcript.RoleUser
		}
		s.client.transcript.AppendVoiceTurn(role, event.Text)
	case "error":
		// Server-declared failure; closing the socket routes the loop into
		// the unintentional-drop path.
		s.client.logger.Warn("voice backend error", "connection_id", vc.id, "message", event.Message)
		vc.ws.Close()
	default:
		s.client.logger.Debug("ignoring voice event", "connection_id", vc.id, "type", event.Type)
	}
}

// captureLoop reads fixed-size frames from the source and ships them out.
// Muted frames are consumed and discarded so the source never backs up.
func (s *VoiceService) captureLoop(vc *voiceConn, source AudioSource) {
	buf := make([]byte, s.client.cfg.AudioFrameBytes)
	for {
		select {
		case <-vc.stopCapture:
			return
		default:
		}

		n, err := source.Read(buf)
		if n > 0 && !s.muted.Load() {
			vc.writeMu.Lock()
			vc.ws.SetWriteDeadline(time.Now().Add(s.client.cfg.VoiceWriteTimeout))
			werr := vc.ws.WriteMessage(websocket.BinaryMessage, buf[:n])
			vc.writeMu.Unlock()
			if werr != nil {
				select {
				case <-vc.stopCapture:
				default:
					s.client.logger.Warn("outbound audio write failed", "connection_id", vc.id, "error", werr)
				}
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				s.client.logger.Warn("audio source read failed", "connection_id", vc.id, "error", err)
			}
			return
		}
	}
}

// finish records the terminal state for vc, unless a newer connection has
// already replaced it.
func (s *VoiceService) finish(vc *voiceConn, state VoiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != vc {
		return
	}
	s.conn = nil
	s.state = state
}

// failAttempt marks a connect attempt failed, unless Disconnect already
// resolved it.
func (s *VoiceService) failAttempt(attempt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == VoiceStateConnecting && s.attempt == attempt {
		s.state = VoiceStateError
	}
}
