// Package transcript maintains the single ordered conversation log shared by
// the text generation path and the voice bridge. All mutation goes through
// the methods below; turns are never reordered after insertion.
package transcript

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is a file attached to a user turn.
type Attachment struct {
	URL       string
	Filename  string
	MediaType string
}

// Citation is a source reference attached to a finalized assistant turn.
type Citation struct {
	URL   string
	Title string
}

// Usage carries token accounting for a finalized assistant turn.
type Usage struct {
	InputUnits  int
	OutputUnits int
	TotalUnits  int
}

// Turn is one message in the conversation log.
type Turn struct {
	ID        string
	Role      Role
	CreatedAt time.Time

	// Content is the finalized text; empty while the turn streams.
	Content string
	// StreamingContent holds in-flight partial text while this turn is the
	// active streaming target.
	StreamingContent string
	// Streaming marks the single actively-streaming turn.
	Streaming bool

	Attachments []Attachment
	Citations   []Citation
	Usage       *Usage
}

func (t Turn) clone() Turn {
	out := t
	if len(t.Attachments) > 0 {
		out.Attachments = append([]Attachment(nil), t.Attachments...)
	}
	if len(t.Citations) > 0 {
		out.Citations = append([]Citation(nil), t.Citations...)
	}
	if t.Usage != nil {
		usage := *t.Usage
		out.Usage = &usage
	}
	return out
}

// Log is the transcript. Mutations are serialized behind a mutex so turns
// from the generation stream and the voice bridge interleave in arrival
// order without corruption.
type Log struct {
	mu        sync.Mutex
	logger    *slog.Logger
	turns     []Turn
	streaming int // index of the active streaming turn, -1 when none

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewLog creates an empty transcript. A nil logger falls back to
// slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger:    logger,
		streaming: -1,
		subs:      make(map[int]func()),
	}
}

// AppendUserTurn pushes a finalized user turn.
func (l *Log) AppendUserTurn(content string, attachments []Attachment) Turn {
	l.mu.Lock()
	turn := Turn{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		CreatedAt:   time.Now(),
		Content:     content,
		Attachments: append([]Attachment(nil), attachments...),
	}
	l.turns = append(l.turns, turn)
	l.mu.Unlock()

	l.notify()
	return turn.clone()
}

// BeginAssistantStreaming pushes a new assistant turn and marks it as the
// active streaming target. Returns false (and logs) when another turn is
// already streaming; callers must finalize the previous one first.
func (l *Log) BeginAssistantStreaming() (string, bool) {
	l.mu.Lock()
	if l.streaming >= 0 {
		l.mu.Unlock()
		l.logger.Warn("assistant turn already streaming; begin ignored")
		return "", false
	}
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		Streaming: true,
	}
	l.turns = append(l.turns, turn)
	l.streaming = len(l.turns) - 1
	l.mu.Unlock()

	l.notify()
	return turn.ID, true
}

// UpdateStreaming replaces the partial text on the active streaming turn.
// No-op when nothing is streaming.
func (l *Log) UpdateStreaming(partial string) {
	l.mu.Lock()
	if l.streaming < 0 {
		l.mu.Unlock()
		return
	}
	l.turns[l.streaming].StreamingContent = partial
	l.mu.Unlock()

	l.notify()
}

// FinalizeStreaming completes the active streaming turn: sets the final
// content, clears the partial text, attaches usage and citations, and clears
// the streaming marker. The transition is one-way per turn. No-op when
// nothing is streaming.
func (l *Log) FinalizeStreaming(finalText string, usage *Usage, citations []Citation) {
	l.mu.Lock()
	if l.streaming < 0 {
		l.mu.Unlock()
		return
	}
	turn := &l.turns[l.streaming]
	turn.Content = finalText
	turn.StreamingContent = ""
	turn.Streaming = false
	if usage != nil {
		u := *usage
		turn.Usage = &u
	}
	if len(citations) > 0 {
		turn.Citations = append([]Citation(nil), citations...)
	}
	l.streaming = -1
	l.mu.Unlock()

	l.notify()
}

// AbandonStreaming finalizes the active streaming turn with whatever partial
// text it holds. Used when a new request supersedes an unfinished stream.
// No-op when nothing is streaming.
func (l *Log) AbandonStreaming() {
	l.mu.Lock()
	if l.streaming < 0 {
		l.mu.Unlock()
		return
	}
	turn := &l.turns[l.streaming]
	turn.Content = turn.StreamingContent
	turn.StreamingContent = ""
	turn.Streaming = false
	l.streaming = -1
	l.mu.Unlock()

	l.notify()
}

// AppendVoiceTurn pushes an already-complete spoken turn. Voice
// transcriptions arrive whole, never token-by-token.
func (l *Log) AppendVoiceTurn(role Role, text string) Turn {
	l.mu.Lock()
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: time.Now(),
		Content:   text,
	}
	l.turns = append(l.turns, turn)
	l.mu.Unlock()

	l.notify()
	return turn.clone()
}

// Clear empties the transcript. Used by "new chat".
func (l *Log) Clear() {
	l.mu.Lock()
	l.turns = nil
	l.streaming = -1
	l.mu.Unlock()

	l.notify()
}

// Turns returns a defensive snapshot of the log in creation order.
func (l *Log) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = t.clone()
	}
	return out
}

// StreamingActive reports whether a turn is currently streaming.
func (l *Log) StreamingActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streaming >= 0
}

// Subscribe registers an observer invoked after every mutation. The returned
// function unregisters it. Observers run outside the transcript lock.
func (l *Log) Subscribe(fn func()) func() {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Log) notify() {
	l.subMu.Lock()
	fns := make([]func(), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
