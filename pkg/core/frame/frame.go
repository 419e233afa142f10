// Package frame turns raw stream chunks into complete logical frames.
//
// The backend delivers generation output either as newline-delimited JSON
// records or as a single plain-text value that grows with every chunk.
// Network chunk boundaries never align with frame boundaries, so the NDJSON
// scanner keeps a carry-over buffer of the trailing partial line.
package frame

import (
	"bytes"
	"log/slog"
	"strings"
)

// Scanner splits NDJSON chunks into decoded frames. It is not safe for
// concurrent use; one scanner serves one in-flight stream.
type Scanner struct {
	carry  []byte
	logger *slog.Logger
}

// NewScanner creates an NDJSON scanner. A nil logger falls back to
// slog.Default().
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Push appends a chunk and returns every frame whose delimiter closed inside
// it, in arrival order. Malformed frames are logged and skipped; they never
// abort the stream.
func (s *Scanner) Push(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	s.carry = append(s.carry, chunk...)

	// The split segments alias the carry's backing array, so decode them all
	// before the carry is replaced.
	segments := bytes.Split(s.carry, []byte{'\n'})
	var frames []Frame
	for _, segment := range segments[:len(segments)-1] {
		if f, ok := s.decodeSegment(segment); ok {
			frames = append(frames, f)
		}
	}
	s.carry = append([]byte(nil), segments[len(segments)-1]...)
	return frames
}

// Flush parses the trailing carry-over at end of input as one best-effort
// final frame. Safe to call when the stream ended cleanly on a delimiter.
func (s *Scanner) Flush() []Frame {
	segment := s.carry
	s.carry = nil
	if f, ok := s.decodeSegment(segment); ok {
		return []Frame{f}
	}
	return nil
}

func (s *Scanner) decodeSegment(segment []byte) (Frame, bool) {
	trimmed := bytes.TrimSpace(segment)
	if len(trimmed) == 0 {
		return Frame{}, false
	}
	f, err := Decode(trimmed)
	if err != nil {
		s.logger.Warn("dropping malformed stream frame", "error", err)
		return Frame{}, false
	}
	return f, true
}

// Accumulator handles the plain-text delivery mode: every chunk appends to
// one running value and each push yields the updated snapshot.
type Accumulator struct {
	text strings.Builder
}

// Push appends a chunk and returns the full accumulated text.
func (a *Accumulator) Push(chunk []byte) string {
	a.text.Write(chunk)
	return a.text.String()
}

// Text returns the accumulated value.
func (a *Accumulator) Text() string {
	return a.text.String()
}
