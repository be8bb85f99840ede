// Package api wraps the exam-paper analysis backend's REST surface. Every
// operation is a plain blocking call taking a context; the bearer token is
// supplied by an injected TokenSource so callers (and tests) control
// credential attachment.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paperlens/paperlens/internal/model"
)

// DefaultTimeout allows for slow AI-backed calls upstream.
const DefaultTimeout = 2 * time.Minute

// MaxUploadFiles mirrors the backend's per-upload limit.
const MaxUploadFiles = 10

// TokenSource provides the current bearer token, or "" when anonymous.
type TokenSource interface {
	Token() string
}

// Client talks to the analysis backend. The zero value is not usable; create
// one with New.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
}

// New creates a backend client. A non-positive timeout selects
// DefaultTimeout. tokens may be nil for a client that never authenticates.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Register creates a new account and returns the created user.
func (c *Client) Register(ctx context.Context, email, password string) (*model.User, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode register request: %w", err)
	}
	var u model.User
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "application/json", bytes.NewReader(body), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login exchanges credentials for a bearer token. The backend expects an
// OAuth2 password form with the email in the username field.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	var resp model.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me fetches the account record for the current token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", "", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UploadFile is one paper to submit for text extraction.
type UploadFile struct {
	Name string
	Data io.Reader
}

// Upload submits 1 to MaxUploadFiles question papers and opens a new
// analysis session. apiKey optionally forwards a user-supplied OCR key.
func (c *Client) Upload(ctx context.Context, files []UploadFile, apiKey string) (*model.UploadResponse, error) {
	if len(files) == 0 {
		return nil, validationError("Please upload at least one question paper")
	}
	if len(files) > MaxUploadFiles {
		return nil, validationError(fmt.Sprintf("Maximum %d files allowed", MaxUploadFiles))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create multipart field for %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Data); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if apiKey != "" {
		if err := mw.WriteField("api_key", apiKey); err != nil {
			return nil, fmt.Errorf("write api_key field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	var resp model.UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Analyze runs pattern analysis over a session's extracted text.
func (c *Client) Analyze(ctx context.Context, sessionID string) (*model.AnalysisResult, error) {
	var result model.AnalysisResult
	if err := c.postSession(ctx, "/analyze", sessionID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GeneratePaper produces the predicted paper for a session.
func (c *Client) GeneratePaper(ctx context.Context, sessionID string) (*model.GeneratedPaper, error) {
	var paper model.GeneratedPaper
	if err := c.postSession(ctx, "/generate", sessionID, &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

// Answers produces worked answers for a session's generated paper.
func (c *Client) Answers(ctx context.Context, sessionID string) (*model.AnswerSet, error) {
	var set model.AnswerSet
	if err := c.postSession(ctx, "/answers", sessionID, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// QuestionPDF downloads the generated paper as a PDF blob. The returned
// filename comes from the backend's Content-Disposition header.
func (c *Client) QuestionPDF(ctx context.Context, sessionID string) ([]byte, string, error) {
	return c.downloadPDF(ctx, "/pdf/questions/"+url.PathEscape(sessionID), "question_paper.pdf")
}

// AnswerPDF downloads the answered paper as a PDF blob.
func (c *Client) AnswerPDF(ctx context.Context, sessionID string) ([]byte, string, error) {
	return c.downloadPDF(ctx, "/pdf/answers/"+url.PathEscape(sessionID), "answers.pdf")
}

func (c *Client) postSession(ctx context.Context, path, sessionID string, out any) error {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("encode session request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

func (c *Client) downloadPDF(ctx context.Context, path, fallbackName string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", networkError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(resp.StatusCode, data)
	}

	name := fallbackName
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if fn := params["filename"]; fn != "" {
			name = fn
		}
	}
	return data, name, nil
}

// doJSON performs a request and decodes a JSON success body into out.
func (c *Client) doJSON(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("backend request", "method", method, "path", path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	return resp, nil
}
