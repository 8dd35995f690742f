package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/lecturequiz/internal/backend"
	"github.com/pavelanni/lecturequiz/internal/export"
	"github.com/pavelanni/lecturequiz/internal/handler"
	appI18n "github.com/pavelanni/lecturequiz/internal/i18n"
	"github.com/pavelanni/lecturequiz/internal/model"
	"github.com/pavelanni/lecturequiz/internal/store"
	"github.com/pavelanni/lecturequiz/internal/upload"
	"github.com/pavelanni/lecturequiz/internal/workflow"
	"github.com/pavelanni/lecturequiz/internal/workspace"
)

//go:generate templ generate -path ../../internal/handler/views

const (
	defaultAPIURL       = "http://localhost:3000"
	maintenanceInterval = 10 * time.Minute
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lecturequiz",
		Short: "Turn lecture videos into transcripts and quizzes",
	}

	serve := serveCmd()
	root.AddCommand(serve, processCmd(), lecturesCmd(), exportCmd(), attemptsCmd(), userCmd(), configCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `lecturequiz --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web front-end",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "lecturequiz.db", "SQLite database path")
	addBackendFlags(cmd)
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Int64("max-upload-bytes", upload.DefaultMaxBytes, "Largest accepted video in bytes")
	f.String("upload-dir", "", "Directory for selected videos awaiting processing (default: system temp dir)")
	f.Duration("results-delay", workflow.DefaultResultsDelay, "Pause before switching to results after processing completes")
	f.Duration("session-ttl", store.DefaultSessionTTL, "Login lifetime")
	f.Duration("workspace-ttl", 2*time.Hour, "Drop idle browser workspaces after this long")
	f.Bool("allow-register", true, "Offer the registration form")
	addLogFlags(cmd)
	return cmd
}

func addBackendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", defaultAPIURL, "Processing backend base URL")
	f.Duration("request-timeout", backend.DefaultTimeout, "Timeout for backend requests")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("LECTUREQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("lecturequiz")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/lecturequiz")
	v.AddConfigPath("/etc/lecturequiz")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newBackend(v *viper.Viper) (*backend.Client, error) {
	client, err := backend.New(v.GetString("api-url"), v.GetDuration("request-timeout"))
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	return client, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client, err := newBackend(v)
	if err != nil {
		return err
	}
	// The backend may come up after us; pages report catalog failures on their own.
	if err := client.Ping(context.Background()); err != nil {
		slog.Warn("processing backend not reachable", "url", client.BaseURL(), "error", err)
	} else {
		slog.Info("processing backend OK", "url", client.BaseURL())
	}

	uploadDir := v.GetString("upload-dir")
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "lecturequiz-uploads")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.AppConfig{
		APIURL:         client.BaseURL(),
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		MaxUploadBytes: v.GetInt64("max-upload-bytes"),
		UploadDir:      uploadDir,
		RequestTimeout: v.GetDuration("request-timeout"),
		ResultsDelay:   v.GetDuration("results-delay"),
		SessionTTL:     v.GetDuration("session-ttl"),
		AllowRegister:  v.GetBool("allow-register"),
	}

	workspaces := workspace.NewRegistry(workspace.Config{
		Processor:      client,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ResultsDelay:   cfg.ResultsDelay,
	})

	h, err := handler.New(db, client, workspaces, export.New(0), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go maintain(ctx, db, workspaces, v.GetDuration("workspace-ttl"))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"api_url", cfg.APIURL,
		"lang", lang,
		"base_path", basePath,
		"max_upload_bytes", cfg.MaxUploadBytes,
		"upload_dir", cfg.UploadDir,
		"allow_register", cfg.AllowRegister,
	)
	return http.ListenAndServe(addr, r)
}

// maintain periodically drops idle workspaces and expired logins.
func maintain(ctx context.Context, db *store.Store, workspaces *workspace.Registry, idle time.Duration) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idle > 0 {
				if n := workspaces.Sweep(idle); n > 0 {
					slog.Info("dropped idle workspaces", "count", n)
				}
			}
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Error("failed to clean up sessions", "error", err)
			} else if n > 0 {
				slog.Info("removed expired sessions", "count", n)
			}
		}
	}
}
