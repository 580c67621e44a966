// Package engine talks to the external move-suggestion service used
// for computer opponents. The contract is a single request/response
// call with a hard deadline; a failure fails closed and the caller
// applies no move.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var ErrNoSuggestion = errors.New("engine returned no move")

// Suggester is what the coordinator depends on; tests swap in a stub.
type Suggester interface {
	BestMove(ctx context.Context, fen string) (Suggestion, error)
}

type Suggestion struct {
	From string `json:"from"`
	To   string `json:"to"`
	FEN  string `json:"fen"` // resulting position as the engine sees it
}

type bestMoveRequest struct {
	FEN string `json:"fen"`
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BestMove(ctx context.Context, fen string) (Suggestion, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/bestmove")
	req.Header.SetContentType("application/json")
	payload, err := json.Marshal(bestMoveRequest{FEN: fen})
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return Suggestion{}, fmt.Errorf("engine request: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return Suggestion{}, fmt.Errorf("engine status %d", status)
	}

	var out Suggestion
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Suggestion{}, fmt.Errorf("decode engine response: %w", err)
	}
	if strings.TrimSpace(out.From) == "" || strings.TrimSpace(out.To) == "" {
		return Suggestion{}, ErrNoSuggestion
	}
	return out, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
