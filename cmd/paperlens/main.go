package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paperlens/paperlens/internal/api"
	"github.com/paperlens/paperlens/internal/auth"
	"github.com/paperlens/paperlens/internal/handler"
	appI18n "github.com/paperlens/paperlens/internal/i18n"
	"github.com/paperlens/paperlens/internal/model"
	"github.com/paperlens/paperlens/internal/wizard"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperlens",
		Short: "Exam paper pattern analysis and prediction client",
	}

	serve := serveCmd()
	root.AddCommand(serve, loginCmd(), registerCmd(), logoutCmd(), whoamiCmd(), runPipelineCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `paperlens --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// backendFlags are shared by every command that talks to the backend.
func backendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend-url", "http://localhost:8000/api", "Analysis backend base URL")
	f.Duration("timeout", api.DefaultTimeout, "Request timeout (AI calls are slow)")
	f.String("token-file", "", "Bearer token path (default: user config dir)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local wizard web UI",
		RunE:  runServe,
	}
	backendFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the bearer token",
		RunE:  runLogin,
	}
	backendFlags(cmd)
	credentialFlags(cmd)
	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE:  runRegister,
	}
	backendFlags(cmd)
	credentialFlags(cmd)
	return cmd
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored bearer token",
		RunE:  runLogout,
	}
	backendFlags(cmd)
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account and credit usage",
		RunE:  runWhoami,
	}
	backendFlags(cmd)
	return cmd
}

func runPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Upload papers and run the full pipeline headless",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPipeline,
	}
	backendFlags(cmd)
	f := cmd.Flags()
	f.String("api-key", "", "Optional OCR API key forwarded with the upload")
	f.Bool("answers", false, "Also request worked answers")
	f.StringP("output-dir", "o", ".", "Directory for downloaded PDFs and JSON artifacts")
	f.Bool("pdf", false, "Download the PDF exports")
	f.Bool("json", false, "Write analysis/paper/answers JSON next to the PDFs")
	return cmd
}

func credentialFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("email", "", "Account email (required)")
	f.String("password", "", "Account password (or set PAPERLENS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAPERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("paperlens")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/paperlens")
	v.AddConfigPath("/etc/paperlens")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// cliNotifier is the terminal's toast layer for auth transitions.
type cliNotifier struct{}

func (cliNotifier) Success(msg string) { fmt.Fprintln(os.Stderr, "✓ "+msg) }
func (cliNotifier) Error(msg string)   { fmt.Fprintln(os.Stderr, "✗ "+msg) }

// buildAuth wires the token store, backend client and auth manager from the
// resolved configuration.
func buildAuth(v *viper.Viper, notify auth.Notifier) (*api.Client, *auth.Manager, error) {
	tokenPath := v.GetString("token-file")
	if tokenPath == "" {
		var err error
		tokenPath, err = auth.DefaultTokenPath()
		if err != nil {
			return nil, nil, err
		}
	}
	tokens := auth.NewFileTokenStore(tokenPath)
	client := api.New(v.GetString("backend-url"), v.GetDuration("timeout"), tokens)
	mgr := auth.NewManager(client, tokens, notify)
	return client, mgr, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if lang == "" {
		lang = "en"
	}
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client, mgr, err := buildAuth(v, nil)
	if err != nil {
		return fmt.Errorf("set up auth: %w", err)
	}

	// Verify the stored token in the background; the route guard shows a
	// neutral page until the state resolves.
	go mgr.Bootstrap(context.Background())

	h, err := handler.New(client, mgr, wizard.New(), lang)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting wizard UI",
		"addr", addr,
		"backend_url", v.GetString("backend-url"),
		"lang", lang,
		"timeout", v.GetDuration("timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	_, mgr, err := buildAuth(v, cliNotifier{})
	if err != nil {
		return err
	}
	if err := mgr.Login(cmd.Context(), v.GetString("email"), v.GetString("password")); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	printUser(mgr)
	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	_, mgr, err := buildAuth(v, cliNotifier{})
	if err != nil {
		return err
	}
	if err := mgr.Register(cmd.Context(), v.GetString("email"), v.GetString("password")); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	printUser(mgr)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	_, mgr, err := buildAuth(v, cliNotifier{})
	if err != nil {
		return err
	}
	mgr.Logout()
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	_, mgr, err := buildAuth(v, cliNotifier{})
	if err != nil {
		return err
	}
	mgr.Bootstrap(cmd.Context())
	if mgr.Status() != auth.StatusAuthenticated {
		return fmt.Errorf("not logged in")
	}
	printUser(mgr)
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	client, mgr, err := buildAuth(v, cliNotifier{})
	if err != nil {
		return err
	}
	mgr.Bootstrap(cmd.Context())
	if mgr.Status() != auth.StatusAuthenticated {
		return fmt.Errorf("not logged in: run `paperlens login` first")
	}

	ctx := cmd.Context()
	outDir := v.GetString("output-dir")
	wiz := wizard.New()

	// Step 1: upload.
	var files []api.UploadFile
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		files = append(files, api.UploadFile{Name: filepath.Base(path), Data: f})
	}
	up, err := client.Upload(ctx, files, v.GetString("api-key"))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	wiz.StartSession(up)
	fmt.Printf("session %s: %s\n", up.SessionID, up.Message)

	// Step 2: analysis.
	analysis, err := client.Analyze(ctx, up.SessionID)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := wiz.SetAnalysis(analysis); err != nil {
		return err
	}
	refresh(ctx, mgr)
	printAnalysis(analysis)

	// Step 3: predicted paper.
	paper, err := client.GeneratePaper(ctx, up.SessionID)
	if err != nil {
		return fmt.Errorf("generate paper: %w", err)
	}
	if err := wiz.SetPaper(paper); err != nil {
		return err
	}
	refresh(ctx, mgr)
	fmt.Printf("\n%s (%s, %d marks, %s)\n", paper.Title, paper.Subject, paper.TotalMarks, paper.Duration)
	for _, sec := range paper.Sections {
		fmt.Printf("  %s: %d questions, %d marks\n", sec.Name, len(sec.Questions), sec.TotalMarks)
	}

	// Step 4: answers, on request.
	if v.GetBool("answers") {
		answers, err := client.Answers(ctx, up.SessionID)
		if err != nil {
			return fmt.Errorf("get answers: %w", err)
		}
		if err := wiz.SetAnswers(answers); err != nil {
			return err
		}
		refresh(ctx, mgr)
		fmt.Printf("\nanswers: %d questions answered\n", len(answers.AnsweredQuestions))
	}

	snap := wiz.Snapshot()
	fmt.Printf("\npipeline finished at step %d of 4\n", snap.Step)

	if v.GetBool("json") {
		if err := writeArtifacts(outDir, snap); err != nil {
			return err
		}
	}
	if v.GetBool("pdf") {
		if err := downloadPDFs(ctx, client, snap, outDir); err != nil {
			return err
		}
	}
	return nil
}

func refresh(ctx context.Context, mgr *auth.Manager) {
	if err := mgr.Refresh(ctx); err != nil {
		slog.Warn("user refresh failed", "error", err)
	}
}

func printUser(mgr *auth.Manager) {
	if u := mgr.User(); u != nil {
		fmt.Printf("%s (credits used: %d)\n", u.Email, u.CreditsUsed)
	}
}

func printAnalysis(a *model.AnalysisResult) {
	fmt.Printf("\nanalysis: %d questions across %d topics\n", a.TotalQuestions, len(a.Topics))
	for _, topic := range a.Topics {
		fmt.Printf("  %-30s %3d  (%.1f%%)\n", topic.Topic, topic.Count, topic.Percentage)
	}
	if len(a.PredictedTopics) > 0 {
		fmt.Printf("predicted topics: %s\n", strings.Join(a.PredictedTopics, ", "))
	}
	for _, insight := range a.PatternInsights {
		fmt.Println("  - " + insight)
	}
}

func writeArtifacts(dir string, snap wizard.Snapshot) error {
	artifacts := map[string]any{}
	if snap.Analysis != nil {
		artifacts["analysis.json"] = snap.Analysis
	}
	if snap.Paper != nil {
		artifacts["paper.json"] = snap.Paper
	}
	if snap.Answers != nil {
		artifacts["answers.json"] = snap.Answers
	}
	for name, artifact := range artifacts {
		data, err := json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("wrote artifact", "path", path)
	}
	return nil
}

func downloadPDFs(ctx context.Context, client *api.Client, snap wizard.Snapshot, dir string) error {
	if snap.Paper == nil {
		return nil
	}
	data, name, err := client.QuestionPDF(ctx, snap.SessionID)
	if err != nil {
		return fmt.Errorf("download question PDF: %w", err)
	}
	if err := savePDF(dir, name, data); err != nil {
		return err
	}

	if snap.Answers != nil {
		data, name, err := client.AnswerPDF(ctx, snap.SessionID)
		if err != nil {
			return fmt.Errorf("download answer PDF: %w", err)
		}
		if err := savePDF(dir, name, data); err != nil {
			return err
		}
	}
	return nil
}

func savePDF(dir, name string, data []byte) error {
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	slog.Info("saved PDF", "path", path, "bytes", len(data))
	return nil
}
