package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/paperlens/paperlens/internal/api"
	"github.com/paperlens/paperlens/internal/auth"
	"github.com/paperlens/paperlens/internal/handler/views"
	appI18n "github.com/paperlens/paperlens/internal/i18n"
	"github.com/paperlens/paperlens/internal/model"
)

// requireAuth gates the wizard views. While the auth state is unresolved a
// neutral page is rendered; protected content is never flashed and no
// premature redirect happens. Anonymous requests land on /login, which is
// itself reachable while anonymous, so there is no redirect loop.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch h.auth.Status() {
		case auth.StatusLoading:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := views.Loading(w, views.LoadingData{
				Base: views.Base{Title: appI18n.T(r.Context(), "AppName"), Step: 1},
			}); err != nil {
				slog.Error("render error", "error", err)
			}
		case auth.StatusAuthenticated:
			ctx := model.ContextWithUser(r.Context(), h.auth.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		}
	})
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.auth.Status() == auth.StatusAuthenticated {
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Login(w, views.LoginData{
		Base: h.base(w, r, appI18n.T(r.Context(), "SignIn")),
	}); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.credentialAction(w, r, h.auth.Login)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.credentialAction(w, r, h.auth.Register)
}

// credentialAction runs login or register (register auto-logs-in) with the
// submitted credentials. Failures flash the backend's message and return to
// the login page with nothing stored.
func (h *Handler) credentialAction(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, email, password string) error) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	if email == "" || password == "" {
		h.setFlash(w, "error", appI18n.T(r.Context(), "CredentialsRequired"))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	// A rejected login is a plain failure here, not an expired session:
	// the backend's own message is what the user needs to see.
	if err := action(r.Context(), email, password); err != nil {
		h.setFlash(w, "error", api.Detail(err))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.setFlash(w, "success", appI18n.T(r.Context(), "LoggedIn"))
	http.Redirect(w, r, "/upload", http.StatusSeeOther)
}

// handleLogout always succeeds. The wizard is reset too so artifacts never
// leak into another account's session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout()
	h.wizard.Reset()
	h.setFlash(w, "success", appI18n.T(r.Context(), "LoggedOut"))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
