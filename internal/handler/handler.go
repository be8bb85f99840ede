// Package handler serves the four-step wizard over HTTP. Handlers are glue:
// they call the backend through the api client, fold results into the wizard
// state, and render views. Wizard and auth state are only ever updated after
// a backend call fully succeeds.
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/paperlens/paperlens/internal/api"
	"github.com/paperlens/paperlens/internal/auth"
	"github.com/paperlens/paperlens/internal/handler/views"
	appI18n "github.com/paperlens/paperlens/internal/i18n"
	"github.com/paperlens/paperlens/internal/model"
	"github.com/paperlens/paperlens/internal/wizard"
)

const flashCookieName = "flash"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	api    *api.Client
	auth   *auth.Manager
	wizard *wizard.State

	// inflight serializes the pipeline actions: each wizard step is
	// user-triggered and must not run concurrently against the same
	// session.
	inflight sync.Mutex
}

// New creates a Handler and parses the views for the given UI language.
func New(client *api.Client, authMgr *auth.Manager, wiz *wizard.State, lang string) (*Handler, error) {
	if err := views.Init(lang); err != nil {
		return nil, fmt.Errorf("init views: %w", err)
	}
	return &Handler{api: client, auth: authMgr, wizard: wiz}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleLanding)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAuth)
		pr.Get("/upload", h.handleUploadPage)
		pr.Post("/upload", h.handleUpload)
		pr.Get("/analysis", h.handleAnalysisPage)
		pr.Post("/generate", h.handleGenerate)
		pr.Get("/paper", h.handlePaperPage)
		pr.Post("/answers", h.handleAnswers)
		pr.Get("/answers", h.handleAnswersPage)
		pr.Get("/pdf/questions", h.handleQuestionPDF)
		pr.Get("/pdf/answers", h.handleAnswerPDF)
		pr.Post("/reset", h.handleReset)
	})
}

func (h *Handler) handleLanding(w http.ResponseWriter, r *http.Request) {
	var user *model.User
	if h.auth.Status() == auth.StatusAuthenticated {
		user = h.auth.User()
	}
	b := h.base(w, r, appI18n.T(r.Context(), "AppName"))
	b.User = user
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Landing(w, views.LandingData{Base: b}); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Upload(w, views.UploadData{
		Base:     h.base(w, r, appI18n.T(r.Context(), "UploadTitle")),
		MaxFiles: api.MaxUploadFiles,
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

// handleUpload runs the first pipeline action: upload the papers, adopt the
// new session, analyze, then refresh the user so the credit counter is
// current.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.inflight.TryLock() {
		h.setFlash(w, "error", appI18n.T(r.Context(), "Busy"))
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	defer h.inflight.Unlock()

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		h.setFlash(w, "error", "invalid upload form: "+err.Error())
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	headers := r.MultipartForm.File["files"]

	var files []api.UploadFile
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.setFlash(w, "error", "could not read "+fh.Filename)
			http.Redirect(w, r, "/upload", http.StatusSeeOther)
			return
		}
		defer f.Close()
		files = append(files, api.UploadFile{Name: fh.Filename, Data: f})
	}

	up, err := h.api.Upload(r.Context(), files, r.FormValue("api_key"))
	if err != nil {
		h.fail(w, r, err, "/upload")
		return
	}
	h.wizard.StartSession(up)

	analysis, err := h.api.Analyze(r.Context(), up.SessionID)
	if err != nil {
		h.fail(w, r, err, "/upload")
		return
	}
	if err := h.wizard.SetAnalysis(analysis); err != nil {
		h.failWizard(w, r, err)
		return
	}
	h.refreshUser(r)

	h.setFlash(w, "success", appI18n.T(r.Context(), "AnalysisDone"))
	http.Redirect(w, r, "/analysis", http.StatusSeeOther)
}

func (h *Handler) handleAnalysisPage(w http.ResponseWriter, r *http.Request) {
	snap := h.wizard.Snapshot()
	if snap.Analysis == nil {
		h.renderMissing(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Analysis(w, views.AnalysisData{
		Base:     h.base(w, r, appI18n.T(r.Context(), "AnalysisTitle")),
		Analysis: snap.Analysis,
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !h.inflight.TryLock() {
		h.setFlash(w, "error", appI18n.T(r.Context(), "Busy"))
		http.Redirect(w, r, "/analysis", http.StatusSeeOther)
		return
	}
	defer h.inflight.Unlock()

	sessionID := h.wizard.SessionID()
	if sessionID == "" {
		h.renderMissing(w, r)
		return
	}

	paper, err := h.api.GeneratePaper(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err, "/analysis")
		return
	}
	if err := h.wizard.SetPaper(paper); err != nil {
		h.failWizard(w, r, err)
		return
	}
	h.refreshUser(r)

	h.setFlash(w, "success", appI18n.T(r.Context(), "PaperDone"))
	http.Redirect(w, r, "/paper", http.StatusSeeOther)
}

func (h *Handler) handlePaperPage(w http.ResponseWriter, r *http.Request) {
	snap := h.wizard.Snapshot()
	if snap.Paper == nil {
		h.renderMissing(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Paper(w, views.PaperData{
		Base:  h.base(w, r, snap.Paper.Title),
		Paper: snap.Paper,
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	if !h.inflight.TryLock() {
		h.setFlash(w, "error", appI18n.T(r.Context(), "Busy"))
		http.Redirect(w, r, "/paper", http.StatusSeeOther)
		return
	}
	defer h.inflight.Unlock()

	sessionID := h.wizard.SessionID()
	if sessionID == "" {
		h.renderMissing(w, r)
		return
	}

	answers, err := h.api.Answers(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err, "/paper")
		return
	}
	if err := h.wizard.SetAnswers(answers); err != nil {
		h.failWizard(w, r, err)
		return
	}
	h.refreshUser(r)

	h.setFlash(w, "success", appI18n.T(r.Context(), "AnswersDone"))
	http.Redirect(w, r, "/answers", http.StatusSeeOther)
}

func (h *Handler) handleAnswersPage(w http.ResponseWriter, r *http.Request) {
	snap := h.wizard.Snapshot()
	if snap.Answers == nil {
		h.renderMissing(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Answers(w, views.AnswersData{
		Base:    h.base(w, r, appI18n.T(r.Context(), "AnswersTitle")),
		Answers: snap.Answers,
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

// PDF downloads are fire-and-forget relative to wizard state: a failure
// flashes an error and leaves everything as it was.
func (h *Handler) handleQuestionPDF(w http.ResponseWriter, r *http.Request) {
	h.servePDF(w, r, "/paper", h.api.QuestionPDF)
}

func (h *Handler) handleAnswerPDF(w http.ResponseWriter, r *http.Request) {
	h.servePDF(w, r, "/answers", h.api.AnswerPDF)
}

func (h *Handler) servePDF(w http.ResponseWriter, r *http.Request, backPath string,
	fetch func(ctx context.Context, sessionID string) ([]byte, string, error)) {
	sessionID := h.wizard.SessionID()
	if sessionID == "" {
		h.renderMissing(w, r)
		return
	}

	data, name, err := fetch(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err, backPath)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write(data); err != nil {
		slog.Warn("pdf write aborted", "error", err)
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.wizard.Reset()
	http.Redirect(w, r, "/upload", http.StatusSeeOther)
}

func (h *Handler) renderMissing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Missing(w, views.MissingData{
		Base: h.base(w, r, appI18n.T(r.Context(), "AppName")),
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

// fail maps a backend error to a user outcome: unauthorized invalidates
// the auth session and lands on the login page; everything else flashes the
// backend detail and returns to backPath with state untouched.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, backPath string) {
	slog.Error("backend call failed", "path", r.URL.Path, "error", err)
	if api.IsUnauthorized(err) {
		h.auth.Invalidate()
		h.setFlash(w, "error", appI18n.T(r.Context(), "SessionExpired"))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.setFlash(w, "error", api.Detail(err))
	http.Redirect(w, r, backPath, http.StatusSeeOther)
}

// failWizard handles a rejected wizard update. A session mismatch has
// already reset the wizard to step 1, so the user gets an explanation
// rather than a generic error before landing back on the upload page.
func (h *Handler) failWizard(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("wizard update rejected", "path", r.URL.Path, "error", err)
	if errors.Is(err, wizard.ErrSessionMismatch) || errors.Is(err, wizard.ErrNoSession) {
		h.setFlash(w, "error", appI18n.T(r.Context(), "SessionReset"))
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	h.fail(w, r, err, "/upload")
}

// refreshUser re-fetches the account after a credit-consuming call. A
// refresh failure downgrades auth; the guard handles it on the next render.
func (h *Handler) refreshUser(r *http.Request) {
	if err := h.auth.Refresh(r.Context()); err != nil {
		slog.Warn("user refresh failed", "error", err)
	}
}

// base assembles the per-page boilerplate: title, user from the request
// context, pending flash, and the derived wizard step.
func (h *Handler) base(w http.ResponseWriter, r *http.Request, title string) views.Base {
	return views.Base{
		Title: title,
		User:  model.UserFromContext(r.Context()),
		Flash: h.popFlash(w, r),
		Step:  int(h.wizard.CurrentStep()),
	}
}

func (h *Handler) setFlash(w http.ResponseWriter, kind, message string) {
	value := base64.URLEncoding.EncodeToString([]byte(kind + "|" + message))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) popFlash(w http.ResponseWriter, r *http.Request) *views.Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})

	decoded, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil
	}
	return &views.Flash{Kind: kind, Message: message}
}
