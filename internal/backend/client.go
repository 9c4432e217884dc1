// Package backend is the HTTP client for the OTMS REST API used during an attempt.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/model"
)

// ErrTransport wraps failures to reach the backend at all.
var ErrTransport = errors.New("backend unreachable")

// ErrMissingServerTime marks a protocol violation: a time-sensitive response
// without serverTime. It is the same sentinel the clock package uses.
var ErrMissingServerTime = clock.ErrMissingServerTime

// ErrQuestionMismatch marks a question response whose id differs from the
// one requested.
var ErrQuestionMismatch = errors.New("question response does not match request")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Client talks to one test on behalf of one student.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client. timeout bounds every request.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

// FetchSession returns the attempt's question order, start, duration and pointer.
func (c *Client) FetchSession(ctx context.Context, testID string) (*SessionPayload, error) {
	var out SessionPayload
	if err := c.do(ctx, http.MethodGet, c.path("tests", testID, "session"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if out.ServerTime == nil {
		return nil, fmt.Errorf("fetch session: %w", ErrMissingServerTime)
	}
	return &out, nil
}

// FetchQuestion returns one question with its deadline fields.
func (c *Client) FetchQuestion(ctx context.Context, testID, questionID string) (*QuestionPayload, error) {
	var out QuestionPayload
	if err := c.do(ctx, http.MethodGet, c.path("tests", testID, "questions", questionID), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, err)
	}
	if out.ServerTime == nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, ErrMissingServerTime)
	}
	return &out, nil
}

// SubmitAnswer commits the answer text for a question.
func (c *Client) SubmitAnswer(ctx context.Context, testID, questionID, answer string) (*SubmitPayload, error) {
	var out SubmitPayload
	body := submitRequest{Answer: answer}
	if err := c.do(ctx, http.MethodPost, c.path("tests", testID, "questions", questionID, "answer"), body, &out); err != nil {
		return nil, fmt.Errorf("submit answer %s: %w", questionID, err)
	}
	if out.ServerTime == nil {
		return nil, fmt.Errorf("submit answer %s: %w", questionID, ErrMissingServerTime)
	}
	return &out, nil
}

// Finalize marks the test complete on the backend.
func (c *Client) Finalize(ctx context.Context, testID string) error {
	if err := c.do(ctx, http.MethodPost, c.path("tests", testID, "finalize"), struct{}{}, nil); err != nil {
		return fmt.Errorf("finalize test: %w", err)
	}
	return nil
}

func (c *Client) path(segments ...string) string {
	p := c.baseURL
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, target string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("url", target).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend call")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			se.Code = env.Error.Code
			se.Message = env.Error.Message
		}
		return se
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("decode response: empty data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// ToQuestionState converts the payload fetched for questionID into the
// session model.
func (p *QuestionPayload) ToQuestionState(questionID string) (*model.QuestionState, error) {
	if p.ID != questionID {
		return nil, fmt.Errorf("%w: requested %s, got %q", ErrQuestionMismatch, questionID, p.ID)
	}
	q := &model.QuestionState{
		ID:        p.ID,
		Body:      p.Body,
		Type:      model.QuestionType(p.Type),
		Options:   p.Options,
		StartedAt: p.StartedAt,
	}
	if !q.Type.Valid() {
		return nil, fmt.Errorf("question %s has unknown type %q", p.ID, p.Type)
	}
	if q.Type == model.QuestionTypeMultipleChoice && len(q.Options) == 0 {
		return nil, fmt.Errorf("multiple-choice question %s has no options", p.ID)
	}
	if p.EndAt != nil {
		q.EndAt = *p.EndAt
	}
	if p.TimeLimit != nil && *p.TimeLimit > 0 {
		q.TimeLimit = time.Duration(*p.TimeLimit) * time.Second
	}
	return q, nil
}
