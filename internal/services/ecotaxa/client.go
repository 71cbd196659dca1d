// Package ecotaxa wraps the EcoTaxa annotation platform REST API.
//
// Only the slice needed for archive submission is covered: authentication,
// project inspection, file upload, and the asynchronous import job that
// ingests an uploaded archive into a project.
package ecotaxa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cytopipe/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 10 * time.Minute
	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultJobPoll        = 2 * time.Second
)

// Config captures the runtime settings required to talk to the platform.
type Config struct {
	BaseURL               string
	RequestTimeoutSeconds int
	UploadTimeoutSeconds  int
	RetryMaxAttempts      int
	RetryBaseDelaySeconds int
	RetryMaxDelaySeconds  int
	JobPollSeconds        int
}

// Client is an authenticated EcoTaxa API client.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	uploadClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	jobPoll          time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUploadClient overrides the HTTP client used for file uploads, which
// carry a much longer timeout than API calls.
func WithUploadClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.uploadClient = client
		}
	}
}

// WithSleeper overrides how retry and poll sleeps are performed (useful for
// tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client from configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	requestTimeout := defaultRequestTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		requestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	uploadTimeout := defaultUploadTimeout
	if cfg.UploadTimeoutSeconds > 0 {
		uploadTimeout = time.Duration(cfg.UploadTimeoutSeconds) * time.Second
	}

	client := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient:       &http.Client{Timeout: requestTimeout},
		uploadClient:     &http.Client{Timeout: uploadTimeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		jobPoll:          defaultJobPoll,
	}
	if cfg.RetryMaxAttempts > 0 {
		client.retryMaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelaySeconds > 0 {
		client.retryBaseDelay = time.Duration(cfg.RetryBaseDelaySeconds) * time.Second
	}
	if cfg.RetryMaxDelaySeconds > 0 {
		client.retryMaxDelay = time.Duration(cfg.RetryMaxDelaySeconds) * time.Second
	}
	if cfg.JobPollSeconds > 0 {
		client.jobPoll = time.Duration(cfg.JobPollSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ecotaxa request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Login authenticates and stores the bearer token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("ecotaxa login: username required")
	}
	if password == "" {
		return errors.New("ecotaxa login: password required")
	}
	payload := map[string]string{"username": username, "password": password}
	var token string
	if err := c.postJSON(ctx, "/api/login", payload, &token); err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: ecotaxa login rejected", services.ErrValidation)
		}
		return err
	}
	c.token = strings.TrimSpace(token)
	if c.token == "" {
		return errors.New("ecotaxa login: empty token")
	}
	return nil
}

// User is the authenticated account.
type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// WhoAmI returns the authenticated user, verifying the token works.
func (c *Client) WhoAmI(ctx context.Context) (User, error) {
	var user User
	err := c.getJSON(ctx, "/api/users/me", &user)
	return user, err
}

// Project is the subset of project fields the pipeline inspects.
type Project struct {
	ProjectID int    `json:"projid"`
	Title     string `json:"title"`
	CanManage bool   `json:"can_administrate"`
}

// ProjectInfo fetches one project by identifier.
func (c *Client) ProjectInfo(ctx context.Context, projectID int) (Project, error) {
	var project Project
	err := c.getJSON(ctx, fmt.Sprintf("/api/projects/%d", projectID), &project)
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return project, fmt.Errorf("%w: ecotaxa project %d", services.ErrNotFound, projectID)
	}
	return project, err
}

// Sample is one remote sample record.
type Sample struct {
	ID     int    `json:"sampleid"`
	OrigID string `json:"orig_id"`
}

// ProjectSamples lists the samples already present in a project. The
// upload stage uses the orig_id set to skip samples submitted earlier.
func (c *Client) ProjectSamples(ctx context.Context, projectID int) ([]Sample, error) {
	var samples []Sample
	path := fmt.Sprintf("/api/samples/search?project_ids=%d", projectID)
	if err := c.getJSON(ctx, path, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// UploadFile pushes a local archive to the user's remote file area and
// returns the remote path an import job can reference.
func (c *Client) UploadFile(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/my_files/", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("ecotaxa upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var remotePath string
	if err := c.doWithRetry(c.uploadClient, req, body.Bytes(), &remotePath); err != nil {
		return "", err
	}
	if strings.TrimSpace(remotePath) == "" {
		return "", errors.New("ecotaxa upload: empty remote path")
	}
	return remotePath, nil
}

// ImportRequest configures an archive import job.
type ImportRequest struct {
	SourcePath          string `json:"source_path"`
	SkipExistingObjects bool   `json:"skip_existing_objects"`
}

type importReply struct {
	JobID int `json:"job_id"`
}

// StartImport launches the asynchronous job ingesting an uploaded archive
// into a project and returns the job identifier.
func (c *Client) StartImport(ctx context.Context, projectID int, req ImportRequest) (int, error) {
	var reply importReply
	path := fmt.Sprintf("/api/file_import/%d", projectID)
	if err := c.postJSON(ctx, path, req, &reply); err != nil {
		return 0, err
	}
	if reply.JobID == 0 {
		return 0, errors.New("ecotaxa import: no job id")
	}
	return reply.JobID, nil
}

// Job state codes used by the platform.
const (
	JobPending  = "P"
	JobRunning  = "R"
	JobFinished = "F"
	JobError    = "E"
	JobAsking   = "A"
)

// Job is the status of an asynchronous server-side job.
type Job struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress_pct"`
	Message  string `json:"progress_msg"`
}

// JobStatus fetches the current state of a job.
func (c *Client) JobStatus(ctx context.Context, jobID int) (Job, error) {
	var job Job
	err := c.getJSON(ctx, fmt.Sprintf("/api/jobs/%d", jobID), &job)
	return job, err
}

// WaitForJob polls a job until it finishes or fails. A job that stops to
// ask a question is treated as a failure since the pipeline runs
// unattended.
func (c *Client) WaitForJob(ctx context.Context, jobID int) (Job, error) {
	for {
		job, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return job, err
		}
		switch job.State {
		case JobFinished:
			return job, nil
		case JobError:
			return job, fmt.Errorf("%w: import job %d failed: %s", services.ErrExternalTool, jobID, job.Message)
		case JobAsking:
			return job, fmt.Errorf("%w: import job %d needs manual input: %s", services.ErrExternalTool, jobID, job.Message)
		}
		if err := c.sleep(ctx, c.jobPoll); err != nil {
			return job, err
		}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ecotaxa request: new request: %w", err)
	}
	c.authorize(req)
	return c.doWithRetry(c.httpClient, req, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ecotaxa request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ecotaxa request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.doWithRetry(c.httpClient, req, encoded, out)
}

// doWithRetry sends the request, retrying transient failures with bounded
// exponential backoff. body is the original payload, needed to rewind the
// request between attempts.
func (c *Client) doWithRetry(httpClient *http.Client, req *http.Request, body []byte, out any) error {
	attempts := c.retryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		err := c.doOnce(httpClient, req, out)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(req.Context(), err, attempt, attempts)
		if !retry {
			return err
		}
		if sleepErr := c.sleep(req.Context(), delay); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("%w: ecotaxa request failed after %d attempts: %v", services.ErrTransient, attempts, lastErr)
}

func (c *Client) doOnce(httpClient *http.Client, req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ecotaxa request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ecotaxa request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ecotaxa request: decode response: %w", err)
	}
	return nil
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if ctx != nil && ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Connection refused and friends arrive as url.Error; retry them.
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	if delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
