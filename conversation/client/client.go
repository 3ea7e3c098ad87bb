package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"discussion-facilitator/backend/conversation/export"
	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/service"
	"discussion-facilitator/backend/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrIgnored is returned by Send when the server dropped an empty message
var ErrIgnored = errors.New("message ignored: empty content")

// APIError is an error response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Code, e.Message, e.StatusCode)
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	Logger   *logger.Logger
}

// Client talks to the conversation API. Reads are retried; writes are sent
// once because a retried append could store the message twice.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = opts.Logger.Named("client")
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    rc,
	}
}

// Messages returns the log, or only messages after afterID when it is set
func (c *Client) Messages(ctx context.Context, afterID uint64) ([]models.Message, error) {
	path := "/api/v1/messages"
	if afterID > 0 {
		path += "?after_id=" + strconv.FormatUint(afterID, 10)
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Send submits a message. It returns ErrIgnored for blank content.
func (c *Client) Send(ctx context.Context, author, content string) (*service.SubmitResult, error) {
	body, err := json.Marshal(map[string]string{"author": author, "content": content})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, http.MethodPost, "/api/v1/messages", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrIgnored
	}
	var out service.SubmitResult
	if err := decode(resp, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clear empties the conversation
func (c *Client) Clear(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodDelete, "/api/v1/messages", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, http.StatusNoContent, nil)
}

func (c *Client) Participants(ctx context.Context) (*service.Participants, error) {
	var out service.Participants
	if err := c.getJSON(ctx, "/api/v1/participants", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate asks the server to check the facilitator trigger
func (c *Client) Evaluate(ctx context.Context) (*service.Result, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/v1/facilitator/evaluate", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out service.Result
	if err := decode(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the conversation and the file name the server suggests
func (c *Client) Export(ctx context.Context, format export.Format) ([]byte, string, error) {
	resp, err := c.get(ctx, "/api/v1/export?format="+url.QueryEscape(string(format)))
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := decode(resp, http.StatusOK, nil); err != nil {
		return nil, "", err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read export: %w", err)
	}

	name := format.FileName(time.Now())
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return data, name, nil
}

// Tail calls fn for every change event pushed on the websocket feed until
// ctx is cancelled or the connection drops
func (c *Client) Tail(ctx context.Context, fn func(models.ChangeEvent)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var frame struct {
			Type    string             `json:"type"`
			Content models.ChangeEvent `json:"content"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read change feed: %w", err)
		}
		if frame.Type == "log_changed" {
			fn(frame.Content)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, http.StatusOK, out)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// decode checks the status and unmarshals the body into out when out is set
func decode(resp *http.Response, want int, out any) error {
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Error *APIError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
			apiErr.Code = body.Error.Code
			apiErr.Message = body.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
