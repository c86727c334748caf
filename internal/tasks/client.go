// Package tasks creates executor jobs and binds each new task id to its
// status monitor.
package tasks

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// maxResponseSize bounds the bodies read from the executor.
const maxResponseSize = 4 << 20

// TransportError reports a failed call to the executor: the request could
// not be sent, or the executor answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: executor returned %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: executor returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the executor's http(s) address, e.g. "https://localhost:8000".
	BaseURL string
	// HTTPClient is used for all requests. If nil, a client honouring
	// Timeout and InsecureSkipVerify is built.
	HTTPClient *http.Client
	// Timeout bounds each creation or listing call. Uploads are not bounded.
	Timeout time.Duration
	// InsecureSkipVerify accepts self-signed executor certificates.
	InsecureSkipVerify bool
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the executor's HTTP endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("tasks: BaseURL is required")
	}
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("tasks: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tasks: BaseURL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if config.InsecureSkipVerify {
			httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			}
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		timeout:    config.Timeout,
		logger:     logger,
	}, nil
}

// BaseURL returns the executor address without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

type createResponse struct {
	TaskID string `json:"task_id"`
}

// Submit validates req and posts it to /tasks/{kind}. A *ValidationError is
// returned without any network call.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	payload, err := req.Payload()
	if err != nil {
		return "", err
	}

	op := "submit " + string(req.Kind())
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("tasks: encoding %s request: %w", req.Kind(), err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	respBody, err := c.do(ctx, op, http.MethodPost, "/tasks/"+string(req.Kind()), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	id, err := parseTaskID(op, respBody)
	if err != nil {
		return "", err
	}
	c.logger.Debug("task submitted", "kind", req.Kind(), "task_id", id)
	return id, nil
}

// ListCSVs returns the CSV files available for split-by-csv.
func (c *Client) ListCSVs(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := c.do(ctx, "list csvs", http.MethodGet, "/files/csvs", "", nil)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, &TransportError{Op: "list csvs", Err: fmt.Errorf("parsing response: %w", err)}
	}
	return names, nil
}

// UploadProgress is called as bytes of an upload are sent. total is -1 when
// the size is unknown.
type UploadProgress func(sent, total int64)

// Upload posts r as the multipart "file" field of /upload and returns the
// task id the executor creates for it.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, size int64, progress UploadProgress) (string, error) {
	const op = "upload"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, &countingReader{r: r, total: size, progress: progress})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err) //nolint:errcheck
	}()

	body, err := c.do(ctx, op, http.MethodPost, "/upload", mw.FormDataContentType(), pr)
	pr.CloseWithError(errors.New("upload finished")) //nolint:errcheck
	if err != nil {
		return "", err
	}
	return parseTaskID(op, body)
}

type countingReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress UploadProgress
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		if c.progress != nil {
			c.progress(c.sent, c.total)
		}
	}
	return n, err
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("executor error response", "op", op, "status", resp.StatusCode)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

func parseTaskID(op string, body []byte) (string, error) {
	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &TransportError{Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if created.TaskID == "" {
		return "", &TransportError{Op: op, Err: errors.New("response has no task_id")}
	}
	return created.TaskID, nil
}

// errorMessage pulls a human-readable message out of an error body. Both
// {"error": "..."} and {"detail": "..."} shapes are understood; anything
// else is returned trimmed.
func errorMessage(body []byte) string {
	var shaped struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if json.Unmarshal(body, &shaped) == nil {
		if shaped.Error != "" {
			return shaped.Error
		}
		if s, ok := shaped.Detail.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(body))
}
