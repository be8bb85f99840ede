// Package views renders the wizard pages. Templates are embedded and parsed
// once at startup against the configured UI language.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	appI18n "github.com/paperlens/paperlens/internal/i18n"
	"github.com/paperlens/paperlens/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages map[string]*template.Template

// Flash is a one-shot notification shown at the top of the next page.
type Flash struct {
	Kind    string // "success" or "error"
	Message string
}

// Base carries the fields every page needs.
type Base struct {
	Title string
	User  *model.User
	Flash *Flash
	Step  int
}

// LandingData renders the public landing page.
type LandingData struct{ Base }

// LoginData renders the combined sign-in / register page.
type LoginData struct{ Base }

// LoadingData renders the neutral page shown while auth state is unresolved.
type LoadingData struct{ Base }

// UploadData renders wizard step 1.
type UploadData struct {
	Base
	MaxFiles int
}

// AnalysisData renders wizard step 2.
type AnalysisData struct {
	Base
	Analysis *model.AnalysisResult
}

// PaperData renders wizard step 3.
type PaperData struct {
	Base
	Paper *model.GeneratedPaper
}

// AnswersData renders wizard step 4.
type AnswersData struct {
	Base
	Answers *model.AnswerSet
}

// MissingData renders the "artifact missing, restart" fallback.
type MissingData struct{ Base }

// Init parses all page templates with translations for the given language.
// Must be called before any render.
func Init(lang string) error {
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
	funcs := template.FuncMap{
		"T": func(id string) string {
			return appI18n.T(ctx, id)
		},
		"Tn": func(id string, count int) string {
			return appI18n.Tp(ctx, id, count)
		},
		"credits": func(n int) string {
			return appI18n.Td(ctx, "CreditsUsed", map[string]any{"Count": n})
		},
	}

	names := []string{
		"landing.html", "login.html", "loading.html", "upload.html",
		"analysis.html", "paper.html", "answers.html", "missing.html",
	}
	pages = make(map[string]*template.Template, len(names))
	for _, name := range names {
		t, err := template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return nil
}

// Landing renders the public landing page.
func Landing(w io.Writer, d LandingData) error { return render(w, "landing.html", d) }

// Login renders the sign-in / register page.
func Login(w io.Writer, d LoginData) error { return render(w, "login.html", d) }

// Loading renders the neutral auth-resolving page.
func Loading(w io.Writer, d LoadingData) error { return render(w, "loading.html", d) }

// Upload renders step 1.
func Upload(w io.Writer, d UploadData) error { return render(w, "upload.html", d) }

// Analysis renders step 2.
func Analysis(w io.Writer, d AnalysisData) error { return render(w, "analysis.html", d) }

// Paper renders step 3.
func Paper(w io.Writer, d PaperData) error { return render(w, "paper.html", d) }

// Answers renders step 4.
func Answers(w io.Writer, d AnswersData) error { return render(w, "answers.html", d) }

// Missing renders the restart fallback.
func Missing(w io.Writer, d MissingData) error { return render(w, "missing.html", d) }

func render(w io.Writer, name string, data any) error {
	t, ok := pages[name]
	if !ok {
		return fmt.Errorf("views not initialized (missing %s)", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}
