package tutor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightclass/tutorlive/pkg/core/transcript"
)

// voiceBackend fakes /sessions and the /voice websocket endpoint. After the
// hello/ready handshake it pushes the queued events, then drains inbound
// binary frames until the client hangs up.
type voiceBackend struct {
	upgrades int32
	hellos   chan voiceHello
	inbound  chan []byte

	// events sent to the client right after ready, in order.
	transcripts []voiceEvent
	audio       [][]byte

	// dropAfterReady closes the socket right after the handshake, simulating
	// a transport failure while connected.
	dropAfterReady bool
}

func newVoiceBackend() *voiceBackend {
	return &voiceBackend{
		hellos:  make(chan voiceHello, 4),
		inbound: make(chan []byte, 64),
	}
}

func (b *voiceBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"session_id":"sess-1"}`)
	})
	mux.HandleFunc("/voice", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		atomic.AddInt32(&b.upgrades, 1)
		defer ws.Close()

		var hello voiceHello
		if err := ws.ReadJSON(&hello); err != nil {
			t.Errorf("read hello: %v", err)
			return
		}
		b.hellos <- hello
		if err := ws.WriteJSON(voiceEvent{Type: "ready"}); err != nil {
			return
		}
		if b.dropAfterReady {
			return
		}
		for _, ev := range b.transcripts {
			ws.WriteJSON(ev)
		}
		for _, frame := range b.audio {
			ws.WriteMessage(websocket.BinaryMessage, frame)
		}

		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				select {
				case b.inbound <- append([]byte(nil), data...):
				default:
				}
			}
		}
	})
	return httptest.NewServer(mux)
}

func (b *voiceBackend) upgradeCount() int32 {
	return atomic.LoadInt32(&b.upgrades)
}

// chanSource feeds audio frames from a channel; closing it ends capture.
type chanSource struct {
	frames chan []byte
}

func (s *chanSource) Read(p []byte) (int, error) {
	frame, ok := <-s.frames
	if !ok {
		return 0, io.EOF
	}
	return copy(p, frame), nil
}

// bufSink collects everything the channel plays back.
type bufSink struct {
	mu   sync.Mutex
	data []byte
}

func (s *bufSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p...)
	return len(p), nil
}

func (s *bufSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestVoiceConnectRequiresSession(t *testing.T) {
	backend := newVoiceBackend()
	srv := backend.server(t)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithLogger(discardLogger()), WithConfig(testConfig(srv.URL)))

	source := &chanSource{frames: make(chan []byte)}
	err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: &bufSink{}})
	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Type != ErrInvalidRequest {
		t.Fatalf("expected invalid_request_error without a session, got %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateIdle {
		t.Fatalf("state must stay idle, got %s", state)
	}
	if got := backend.upgradeCount(); got != 0 {
		t.Fatalf("no websocket upgrade should happen, got %d", got)
	}
}

func TestVoiceDuplexRoundTrip(t *testing.T) {
	backend := newVoiceBackend()
	backend.transcripts = []voiceEvent{
		{Type: "transcript", Role: "user", Text: "what is gravity"},
		{Type: "transcript", Role: "assistant", Text: "a force of attraction"},
	}
	backend.audio = [][]byte{{0x01, 0x02}, {0x03}}
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)
	c.Transcript().AppendUserTurn("typed question", nil)

	source := &chanSource{frames: make(chan []byte, 4)}
	sink := &bufSink{}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{
		VoiceID: "narrator",
		Source:  source,
		Sink:    sink,
	}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateConnected {
		t.Fatalf("expected connected, got %s", state)
	}

	hello := <-backend.hellos
	if hello.Type != "hello" || hello.SessionID != "sess-1" || hello.VoiceID != "narrator" {
		t.Fatalf("unexpected hello: %+v", hello)
	}

	// Outbound: mic frames reach the backend.
	source.frames <- []byte("pcm-frame")
	select {
	case got := <-backend.inbound:
		if string(got) != "pcm-frame" {
			t.Fatalf("unexpected inbound frame: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound audio")
	}

	// Inbound: audio lands in the sink, transcriptions land in the shared log
	// after the typed turn, as complete non-streaming turns.
	waitFor(t, "playback audio", func() bool { return len(sink.bytes()) == 3 })
	waitFor(t, "voice transcripts", func() bool { return len(c.Transcript().Turns()) == 3 })

	turns := c.Transcript().Turns()
	if turns[0].Content != "typed question" {
		t.Fatalf("typed turn must stay first: %+v", turns[0])
	}
	if turns[1].Role != transcript.RoleUser || turns[1].Content != "what is gravity" || turns[1].Streaming {
		t.Fatalf("unexpected spoken user turn: %+v", turns[1])
	}
	if turns[2].Role != transcript.RoleAssistant || turns[2].Content != "a force of attraction" {
		t.Fatalf("unexpected spoken assistant turn: %+v", turns[2])
	}

	close(source.frames)
	if err := c.Voice.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}
}

func TestVoiceConnectIsNotReentrant(t *testing.T) {
	backend := newVoiceBackend()
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)
	source := &chanSource{frames: make(chan []byte)}
	sink := &bufSink{}

	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: sink}); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: sink})
	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Type != ErrInvalidRequest {
		t.Fatalf("second connect must be rejected, got %v", err)
	}
	if got := backend.upgradeCount(); got != 1 {
		t.Fatalf("expected exactly 1 upgrade, got %d", got)
	}

	close(source.frames)
	c.Voice.Disconnect()
}

func TestVoiceMuteSuppressesOutboundOnly(t *testing.T) {
	backend := newVoiceBackend()
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)

	if _, err := c.Voice.ToggleMute(); err == nil {
		t.Fatal("mute must require an active connection")
	}

	source := &chanSource{frames: make(chan []byte, 8)}
	sink := &bufSink{}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: sink}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	muted, err := c.Voice.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("expected muted=true, got %v %v", muted, err)
	}
	source.frames <- []byte("suppressed")
	// The muted frame is consumed but never shipped.
	select {
	case got := <-backend.inbound:
		t.Fatalf("muted frame leaked: %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	muted, err = c.Voice.ToggleMute()
	if err != nil || muted {
		t.Fatalf("expected muted=false, got %v %v", muted, err)
	}
	source.frames <- []byte("audible")
	select {
	case got := <-backend.inbound:
		if string(got) != "audible" {
			t.Fatalf("unexpected frame after unmute: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for unmuted audio")
	}

	close(source.frames)
	c.Voice.Disconnect()
}

func TestVoiceDisconnectIsIdempotent(t *testing.T) {
	backend := newVoiceBackend()
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)

	// Disconnect before any connect is a no-op.
	if err := c.Voice.Disconnect(); err != nil {
		t.Fatalf("disconnect while idle: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateIdle {
		t.Fatalf("idle disconnect must not change state, got %s", state)
	}

	source := &chanSource{frames: make(chan []byte)}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: &bufSink{}}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	close(source.frames)

	if err := c.Voice.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Voice.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateDisconnected {
		t.Fatalf("expected disconnected, got %s", state)
	}

	// The channel can come back after a clean shutdown.
	source2 := &chanSource{frames: make(chan []byte)}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source2, Sink: &bufSink{}}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := backend.upgradeCount(); got != 2 {
		t.Fatalf("expected a second upgrade on reconnect, got %d", got)
	}
	close(source2.frames)
	c.Voice.Disconnect()
}

func TestVoiceTransportDropMovesToErrorAndAllowsRetry(t *testing.T) {
	backend := newVoiceBackend()
	backend.dropAfterReady = true
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)
	source := &chanSource{frames: make(chan []byte, 1)}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: &bufSink{}}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, "error state after transport drop", func() bool {
		return c.Voice.State() == VoiceStateError
	})

	// Capture must stop consuming once the channel is gone.
	close(source.frames)

	// An explicit retry starts a fresh handshake.
	backend.dropAfterReady = false
	source2 := &chanSource{frames: make(chan []byte)}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source2, Sink: &bufSink{}}); err != nil {
		t.Fatalf("reconnect after error: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateConnected {
		t.Fatalf("expected connected after retry, got %s", state)
	}
	if got := backend.upgradeCount(); got != 2 {
		t.Fatalf("expected 2 upgrades, got %d", got)
	}
	close(source2.frames)
	c.Voice.Disconnect()
}

func TestVoiceDisconnectFromErrorStateLandsDisconnected(t *testing.T) {
	backend := newVoiceBackend()
	backend.dropAfterReady = true
	srv := backend.server(t)
	defer srv.Close()

	c := provisionedClient(t, srv)
	source := &chanSource{frames: make(chan []byte, 1)}
	if err := c.Voice.Connect(context.Background(), VoiceConnectParams{Source: source, Sink: &bufSink{}}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "error state after transport drop", func() bool {
		return c.Voice.State() == VoiceStateError
	})
	close(source.frames)

	if err := c.Voice.Disconnect(); err != nil {
		t.Fatalf("disconnect from error: %v", err)
	}
	if state := c.Voice.State(); state != VoiceStateDisconnected {
		t.Fatalf("expected disconnected after teardown from error, got %s", state)
	}
}
