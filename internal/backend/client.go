package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coxswain-dev/coxswain/internal/core/turn"
)

// Client streams agent turns from the backend service over SSE and feeds the
// decoded events into a turn.StreamHandler. One client serves one
// conversation; Stream is invoked once per turn and Cancel aborts whichever
// stream is in flight.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *RetryConfig
	logger     turn.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewClient configures a stream client for the given backend base URL.
func NewClient(baseURL, apiKey string, logger turn.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	if logger == nil {
		logger = turn.NoOpLogger{}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// No global timeout: a turn may stream for minutes. Connect-time
		// failures are bounded by the retry config instead.
		httpClient: &http.Client{Timeout: 0},
		retry:      DefaultRetryConfig(),
		logger:     logger,
	}, nil
}

// SetHTTPClient swaps the underlying HTTP client; tests install stub
// transports through this.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetRetryConfig overrides connect-time retry behavior.
func (c *Client) SetRetryConfig(config *RetryConfig) {
	c.retry = config
}

type streamRequest struct {
	Prompt string `json:"prompt"`
}

// Stream opens the turn stream and dispatches events until the backend
// signals done, the context is cancelled, or the connection dies. The
// handler's OnComplete is invoked exactly once in every case: a turn must
// never hang on a backend failure, so errors are translated into a final
// content chunk followed by the completion signal.
func (c *Client) Stream(ctx context.Context, prompt string, h turn.StreamHandler) {
	ctx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer cancel()

	resp, err := c.connect(ctx, prompt)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error(ctx, "Failed to open turn stream", err)
			h.OnChunk(fmt.Sprintf("\n\nBackend connection failed: %v", err))
		}
		h.OnComplete()
		return
	}
	defer resp.Body.Close()

	if err := c.consume(ctx, bufio.NewReader(resp.Body), h); err != nil && ctx.Err() == nil {
		c.logger.Error(ctx, "Turn stream failed mid-flight", err)
		h.OnChunk(fmt.Sprintf("\n\nStream error: %v", err))
	}
	h.OnComplete()
}

// Cancel aborts the in-flight stream. Best-effort: a handful of frames may
// still be delivered after cancellation and the coordinator's generation
// guard is what discards them.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
}

func (c *Client) connect(ctx context.Context, prompt string) (*http.Response, error) {
	body, err := json.Marshal(streamRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}

	var resp *http.Response
	err = withRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/turns", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("backend: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return &connectError{err: err, retryable: ctx.Err() == nil && isRetryableNetError(err)}
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(r.Body, 4*1024))
			_ = r.Body.Close()
			return &connectError{
				err:        fmt.Errorf("status %s: %s", r.Status, string(msg)),
				statusCode: r.StatusCode,
				retryable:  isRetryableStatusCode(r.StatusCode),
			}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// consume reads SSE frames until the terminator or an error. Keepalive
// comments and unknown fields are skipped; frames that fail schema
// validation are logged and dropped rather than poisoning the turn.
func (c *Client) consume(ctx context.Context, reader *bufio.Reader, h turn.StreamHandler) error {
	for {
		line, rerr := reader.ReadString('\n')
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("backend: stream read: %w", rerr)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		evt, err := decodeEvent(data)
		if err != nil {
			preview := data
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			c.logger.Warn(ctx, "Dropping invalid stream event",
				turn.Field("error", err.Error()),
				turn.Field("frame", preview),
			)
			continue
		}

		if done := c.dispatch(evt, h); done {
			return nil
		}
	}
}

func (c *Client) dispatch(evt wireEvent, h turn.StreamHandler) bool {
	switch evt.Type {
	case eventChunk:
		h.OnChunk(evt.Text)
	case eventMeta:
		h.OnMeta(turn.Meta{
			Model:            evt.Model,
			OutputTokens:     evt.OutputTokens,
			ThinkingDuration: time.Duration(evt.ThinkingMs) * time.Millisecond,
			ThinkingText:     evt.ThinkingText,
		})
	case eventToolStart:
		h.OnToolStart(evt.ID, evt.Name, evt.Input)
	case eventToolEnd:
		h.OnToolComplete(evt.ID, evt.Output, evt.OK, evt.Error, evt.Input)
	case eventAgentSpawn:
		h.OnAgentSpawn(evt.ID, evt.Name, evt.Task, evt.Background)
	case eventAgentProgress:
		h.OnAgentProgress(evt.ID, evt.CurrentTool)
	case eventAgentEnd:
		h.OnAgentComplete(evt.ID, evt.OK, evt.Result)
	case eventTasks:
		tasks := make([]turn.Task, 0, len(evt.Tasks))
		for _, t := range evt.Tasks {
			tasks = append(tasks, turn.Task{ID: t.ID, Title: t.Title, Status: t.Status})
		}
		h.OnTasks(tasks)
	case eventAsk:
		h.OnAskUser(evt.Prompt)
	case eventDone:
		return true
	}
	return false
}
