package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// Endpoints holds the backend paths, relative to the base URL
type Endpoints struct {
	Upload string
	Start  string
	Status string
	Cancel string
}

// DefaultEndpoints matches the enhancement backend's routes
var DefaultEndpoints = Endpoints{
	Upload: "/api/upload",
	Start:  "/api/enhance",
	Status: "/api/status",
	Cancel: "/api/job",
}

// Client talks to the enhancement backend
type Client struct {
	baseURL    *url.URL
	endpoints  Endpoints
	httpClient *http.Client
}

// NewClient creates a backend client. A nil httpClient gets a default with the given timeout.
func NewClient(baseURL string, endpoints Endpoints, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend URL %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    u,
		endpoints:  withDefaults(endpoints),
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the backend origin used to resolve relative result URLs
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Upload sends the file as multipart field "file" and returns the assigned job
func (c *Client) Upload(ctx context.Context, file selector.File, model string) (*types.UploadResponse, error) {
	src, err := os.Open(file.Path)
	if err != nil {
		return nil, &NetworkError{Op: "upload", Err: err}
	}
	defer src.Close()

	body, contentType := multipartBody(src, file, model)

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoints.Upload, nil, body)
	if err != nil {
		body.Close()
		return nil, &NetworkError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	var out types.UploadResponse
	code, err := c.do(req, "upload", &out)
	if err != nil {
		return nil, err
	}
	if !isSuccess(code) {
		return nil, &UploadError{StatusCode: code}
	}
	if out.JobID == "" {
		return nil, &NetworkError{Op: "upload", Err: fmt.Errorf("response carries no jobId")}
	}

	log.Printf("[remote] uploaded %s as job %s", file.Name, out.JobID)
	return &out, nil
}

// Start asks the backend to begin enhancing the job with the given model
func (c *Client) Start(ctx context.Context, jobID, model string) error {
	payload, err := json.Marshal(types.StartRequest{JobID: jobID, Model: model})
	if err != nil {
		return &NetworkError{Op: "start", Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoints.Start, nil, bytes.NewReader(payload))
	if err != nil {
		return &NetworkError{Op: "start", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	code, err := c.do(req, "start", nil)
	if err != nil {
		return err
	}
	if !isSuccess(code) {
		return &StartError{StatusCode: code}
	}
	return nil
}

// Status fetches the current state of a job
func (c *Client) Status(ctx context.Context, jobID string) (*types.StatusResponse, error) {
	query := url.Values{"jobId": {jobID}}
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoints.Status, query, nil)
	if err != nil {
		return nil, &NetworkError{Op: "status", Err: err}
	}

	var out types.StatusResponse
	code, err := c.do(req, "status", &out)
	if err != nil {
		return nil, err
	}
	if !isSuccess(code) {
		return nil, &StatusError{StatusCode: code}
	}
	return &out, nil
}

// Cancel asks the backend to stop a running job
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	path := strings.TrimRight(c.endpoints.Cancel, "/") + "/" + url.PathEscape(jobID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return &NetworkError{Op: "cancel", Err: err}
	}

	code, err := c.do(req, "cancel", nil)
	if err != nil {
		return err
	}
	if !isSuccess(code) {
		return &CancelError{StatusCode: code}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	// path is appended so a base URL served below a prefix keeps it
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out when out is non-nil.
// Non-2xx bodies are drained and only the status code is returned.
func (c *Client) do(req *http.Request, op string, out interface{}) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) || out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &NetworkError{Op: op, Err: fmt.Errorf("invalid response body: %w", err)}
	}
	return resp.StatusCode, nil
}

// multipartBody streams the file through a pipe so large uploads are not buffered.
// The part carries the file's MIME type; the backend rejects anything else.
func multipartBody(src io.Reader, file selector.File, model string) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeParts(mw, src, file, model)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeParts(mw *multipart.Writer, src io.Reader, file selector.File, model string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	header.Set("Content-Type", file.Type)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}

	if model != "" {
		if err := mw.WriteField("model", model); err != nil {
			return err
		}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func withDefaults(e Endpoints) Endpoints {
	if e.Upload == "" {
		e.Upload = DefaultEndpoints.Upload
	}
	if e.Start == "" {
		e.Start = DefaultEndpoints.Start
	}
	if e.Status == "" {
		e.Status = DefaultEndpoints.Status
	}
	if e.Cancel == "" {
		e.Cancel = DefaultEndpoints.Cancel
	}
	return e
}
