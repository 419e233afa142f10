package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/brightclass/tutorlive/pkg/core/frame"
	"github.com/brightclass/tutorlive/pkg/core/reduce"
	"github.com/brightclass/tutorlive/pkg/core/transcript"
)

// Generation modes accepted by the backend.
const (
	modeChat  = "chat"
	modeComic = "comic"
)

// Usage headers set by the backend on a completed generation response.
const (
	headerUsageInput  = "X-Usage-Input-Units"
	headerUsageOutput = "X-Usage-Output-Units"
	headerUsageTotal  = "X-Usage-Total-Units"
	headerCitations   = "X-Citations"
)

type generationRequest struct {
	SessionID   string              `json:"session_id"`
	UserID      string              `json:"user_id,omitempty"`
	Message     string              `json:"message"`
	Mode        string              `json:"mode"`
	Attachments []attachmentRecord `json:"attachments,omitempty"`
}

type attachmentRecord struct {
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// SendMessage sends a chat message and streams the reply into the
// transcript. The backend delivers the answer as a single plain-text body
// that grows with every chunk; each chunk publishes an updated snapshot.
//
// Session and owner state are read at call time, never captured earlier.
func (c *Client) SendMessage(ctx context.Context, text string, attachments ...transcript.Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewInvalidRequestError("message must not be empty")
	}
	sessionID := c.Sessions.SessionID()
	if sessionID == "" {
		return NewInvalidRequestError("session is not ready; wait for provisioning or start a new chat")
	}

	gen := c.nextGeneration()
	c.transcript.AbandonStreaming()
	c.transcript.AppendUserTurn(text, attachments)
	if _, ok := c.transcript.BeginAssistantStreaming(); !ok {
		return NewInvalidRequestError("another response is still streaming")
	}

	records := make([]attachmentRecord, 0, len(attachments))
	for _, a := range attachments {
		records = append(records, attachmentRecord{URL: a.URL, Filename: a.Filename, MediaType: a.MediaType})
	}
	resp, err := c.startGeneration(ctx, generationRequest{
		SessionID:   sessionID,
		UserID:      c.Sessions.OwnerID(),
		Message:     text,
		Mode:        modeChat,
		Attachments: records,
	})
	if err != nil {
		c.transcript.AbandonStreaming()
		return err
	}
	defer resp.Body.Close()

	var acc frame.Accumulator
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			snapshot := acc.Push(buf[:n])
			if c.currentGeneration() != gen {
				// Superseded; output is ignored from here on.
				return nil
			}
			c.transcript.UpdateStreaming(snapshot)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if c.currentGeneration() == gen {
				// Keep the partial text visible rather than rolling back.
				c.transcript.FinalizeStreaming(acc.Text(), nil, nil)
			}
			return NewStreamError("generation stream interrupted", readErr)
		}
	}

	if c.currentGeneration() != gen {
		return nil
	}
	c.transcript.FinalizeStreaming(acc.Text(), usageFromHeaders(resp.Header, c), citationsFromHeaders(resp.Header, c))
	return nil
}

// GenerateComic requests a multi-part "story + ordered panels" generation.
// Frames arrive as NDJSON; the reducer maintains the materialized view,
// published through SubscribeView, while the story text streams into the
// transcript.
func (c *Client) GenerateComic(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return NewInvalidRequestError("prompt must not be empty")
	}
	sessionID := c.Sessions.SessionID()
	if sessionID == "" {
		return NewInvalidRequestError("session is not ready; wait for provisioning or start a new chat")
	}

	gen := c.nextGeneration()
	c.transcript.AbandonStreaming()
	c.transcript.AppendUserTurn(prompt, nil)
	if _, ok := c.transcript.BeginAssistantStreaming(); !ok {
		return NewInvalidRequestError("another response is still streaming")
	}

	resp, err := c.startGeneration(ctx, generationRequest{
		SessionID: sessionID,
		UserID:    c.Sessions.OwnerID(),
		Message:   prompt,
		Mode:      modeComic,
	})
	if err != nil {
		c.transcript.AbandonStreaming()
		return err
	}
	defer resp.Body.Close()

	scanner := frame.NewScanner(c.logger)
	reducer := reduce.New(func(v reduce.View) {
		if c.currentGeneration() != gen {
			return
		}
		c.setView(v)
		c.transcript.UpdateStreaming(v.PrimaryText)
	}, c.logger)

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, f := range scanner.Push(buf[:n]) {
				reducer.Apply(f)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			reducer.Fail(readErr)
			if c.currentGeneration() == gen {
				c.transcript.FinalizeStreaming(reducer.View().PrimaryText, nil, nil)
			}
			return NewStreamError("comic stream interrupted", readErr)
		}
	}

	// Best-effort parse of a trailing unterminated line.
	for _, f := range scanner.Flush() {
		reducer.Apply(f)
	}
	reducer.Finish()

	if c.currentGeneration() != gen {
		return nil
	}
	c.transcript.FinalizeStreaming(reducer.View().PrimaryText, usageFromHeaders(resp.Header, c), nil)
	return nil
}

func (c *Client) startGeneration(ctx context.Context, genReq generationRequest) (*http.Response, error) {
	payload, err := json.Marshal(genReq)
	if err != nil {
		return nil, NewStreamError("encode generation request", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewStreamError("build generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "POST", URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, NewAPIError(fmt.Sprintf("generate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return resp, nil
}

func usageFromHeaders(h http.Header, c *Client) *transcript.Usage {
	input, inErr := strconv.Atoi(h.Get(headerUsageInput))
	output, outErr := strconv.Atoi(h.Get(headerUsageOutput))
	if inErr != nil && outErr != nil {
		return nil
	}
	if inErr != nil || outErr != nil {
		c.logger.Warn("dropping partial usage headers",
			"input", h.Get(headerUsageInput), "output", h.Get(headerUsageOutput))
		return nil
	}
	usage := &transcript.Usage{InputUnits: input, OutputUnits: output}
	if total, err := strconv.Atoi(h.Get(headerUsageTotal)); err == nil {
		usage.TotalUnits = total
	} else {
		usage.TotalUnits = input + output
	}
	return usage
}

func citationsFromHeaders(h http.Header, c *Client) []transcript.Citation {
	raw := strings.TrimSpace(h.Get(headerCitations))
	if raw == "" {
		return nil
	}
	var decoded []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		c.logger.Warn("dropping malformed citations header", "error", err)
		return nil
	}
	citations := make([]transcript.Citation, 0, len(decoded))
	for _, d := range decoded {
		citations = append(citations, transcript.Citation{URL: d.URL, Title: d.Title})
	}
	return citations
}
