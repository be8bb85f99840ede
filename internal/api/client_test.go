package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// staticToken is a TokenSource with a fixed value.
type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 0, staticToken(token))
}

func TestBearerTokenAttachment(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "a@b.c", "credits_used": 0})
	}, "tok123")

	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want 'Bearer tok123'", gotAuth)
	}
}

func TestNoTokenNoHeader(t *testing.T) {
	var gotAuth string
	sawHeader := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, sawHeader = r.Header["Authorization"]
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	}, "")

	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if sawHeader || gotAuth != "" {
		t.Errorf("anonymous request carried Authorization header %q", gotAuth)
	}
}

func TestLoginSendsOAuthForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %q, want /auth/login", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		// The backend's OAuth2 password form takes the email as username.
		if got := r.PostFormValue("username"); got != "user@example.com" {
			t.Errorf("username = %q", got)
		}
		if got := r.PostFormValue("password"); got != "hunter2" {
			t.Errorf("password = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
	}, "")

	resp, err := c.Login(context.Background(), "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken != "tok" {
		t.Errorf("AccessToken = %q, want 'tok'", resp.AccessToken)
	}
}

func TestUploadMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 2 {
			t.Fatalf("got %d files, want 2", len(files))
		}
		if files[0].Filename != "2023.pdf" || files[1].Filename != "2024.pdf" {
			t.Errorf("filenames = %q, %q", files[0].Filename, files[1].Filename)
		}
		if got := r.FormValue("api_key"); got != "ocr-key" {
			t.Errorf("api_key = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id":      "s1",
			"files_processed": 2,
			"extracted_text":  []string{"a", "b"},
			"credits_used":    2,
			"message":         "ok",
		})
	}, "tok")

	up, err := c.Upload(context.Background(), []UploadFile{
		{Name: "2023.pdf", Data: strings.NewReader("%PDF-1")},
		{Name: "2024.pdf", Data: strings.NewReader("%PDF-2")},
	}, "ocr-key")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.SessionID != "s1" || up.FilesProcessed != 2 {
		t.Errorf("unexpected response: %+v", up)
	}
}

func TestUploadFileCountValidation(t *testing.T) {
	c := New("http://unused.invalid", 0, nil)

	_, err := c.Upload(context.Background(), nil, "")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindValidation {
		t.Errorf("empty upload: got %v, want client-side validation error", err)
	}

	files := make([]UploadFile, MaxUploadFiles+1)
	for i := range files {
		files[i] = UploadFile{Name: "f.pdf", Data: strings.NewReader("x")}
	}
	_, err = c.Upload(context.Background(), files, "")
	if !errors.As(err, &apiErr) || apiErr.Kind != KindValidation {
		t.Errorf("oversized upload: got %v, want client-side validation error", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   Kind
		wantDetail string
	}{
		{"unauthorized", 401, `{"detail": "Could not validate credentials"}`, KindUnauthorized, "Could not validate credentials"},
		{"validation string", 422, `{"detail": "Could not extract text from any file"}`, KindValidation, "Could not extract text from any file"},
		{"validation structured", 422, `{"detail": [{"loc": ["body"], "msg": "field required"}]}`, KindValidation, "field required"},
		{"validation multiple", 422, `{"detail": [{"loc": ["body", "email"], "msg": "field required"}, {"loc": ["body", "password"], "msg": "value too short"}]}`, KindValidation, "field required; value too short"},
		{"validation opaque", 422, `{"detail": [{"loc": ["body"]}]}`, KindValidation, `[{"loc": ["body"]}]`},
		{"not found", 404, `{"detail": "Session not found. Please upload files again."}`, KindValidation, "Session not found. Please upload files again."},
		{"server", 500, `{"detail": "PDF generation failed"}`, KindServer, "PDF generation failed"},
		{"no detail", 502, `bad gateway`, KindServer, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, "tok")

			_, err := c.Analyze(context.Background(), "s1")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("got %T, want *Error", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %d, want %d", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", apiErr.Detail, tt.wantDetail)
			}
		})
	}
}

func TestNetworkErrorKind(t *testing.T) {
	// Closed server: the request cannot complete.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL, 0, nil)

	_, err := c.Analyze(context.Background(), "s1")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Errorf("got %v, want KindNetwork", err)
	}
	if IsUnauthorized(err) {
		t.Error("network failure misclassified as unauthorized")
	}
}

func TestAnalyzeSendsSessionID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %q, want /analyze", r.URL.Path)
		}
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SessionID != "s1" {
			t.Errorf("session_id = %q, want s1", req.SessionID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": "s1", "total_questions": 12})
	}, "tok")

	result, err := c.Analyze(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.SessionID != "s1" || result.TotalQuestions != 12 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestQuestionPDFDownload(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pdf/questions/s1" {
			t.Errorf("path = %q, want /pdf/questions/s1", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q, PDF download must carry the bearer token", auth)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="Physics_2025.pdf"`)
		_, _ = w.Write(pdf)
	}, "tok")

	data, name, err := c.QuestionPDF(context.Background(), "s1")
	if err != nil {
		t.Fatalf("QuestionPDF: %v", err)
	}
	if string(data) != string(pdf) {
		t.Error("PDF bytes do not round-trip")
	}
	if name != "Physics_2025.pdf" {
		t.Errorf("filename = %q, want Physics_2025.pdf", name)
	}
}

func TestPDFFallbackFilename(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}, "tok")

	_, name, err := c.AnswerPDF(context.Background(), "s1")
	if err != nil {
		t.Fatalf("AnswerPDF: %v", err)
	}
	if name != "answers.pdf" {
		t.Errorf("filename = %q, want fallback answers.pdf", name)
	}
}
