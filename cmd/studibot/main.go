package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/studibot/internal/cache"
	"github.com/pavelanni/studibot/internal/chat"
	"github.com/pavelanni/studibot/internal/credentials"
	"github.com/pavelanni/studibot/internal/emotion"
	"github.com/pavelanni/studibot/internal/handler"
	appI18n "github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/intent"
	"github.com/pavelanni/studibot/internal/llm"
	"github.com/pavelanni/studibot/internal/llm/prompts"
	"github.com/pavelanni/studibot/internal/scraper"
	"github.com/pavelanni/studibot/internal/state"
	"github.com/pavelanni/studibot/internal/store"
)

const defaultLogSalt = "studibot_default_salt_change_me"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studibot",
		Short: "Chat backend for Moodle and STiNE deadlines and exam preparation",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), credentialsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `studibot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "studibot.db", "SQLite database path")
	f.StringP("lang", "l", "de", "Default reply language (de, en)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "Fallback API key (or set OPENAI_API_KEY)")
	f.String("llm-model", llm.DefaultModel, "LLM model name")
	f.Duration("llm-timeout", 60*time.Second, "Timeout for a single LLM request")
	f.Duration("state-ttl", state.DefaultTTL, "Lifetime of an idle conversation flow")
	f.Duration("cache-ttl", cache.DefaultTTL, "Lifetime of scraped portal text")
	f.Duration("scrape-wait", scraper.DefaultMaxWait, "Maximum wait per page load or element")
	f.Int64("max-browsers", scraper.DefaultMaxBrowsers, "Concurrent browser sessions")
	f.Bool("headless", true, "Run the browser without a window")
	f.String("browser-bin", "", "Browser binary (empty downloads or finds one)")
	f.Duration("request-timeout", 3*time.Minute, "Upper bound for a single HTTP request")
	addCredentialsDirFlag(f)
	f.String("log-salt", defaultLogSalt, "Salt for pseudonymized user ids in the turn log")
	f.Bool("expose-credentials", false, "Return stored secrets in clear from GET /credentials")
	f.String("admin-token", "", "Token guarding /credentials and /admin (or set STUDIBOT_ADMIN_TOKEN)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the turn evaluation log as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "studibot.db", "SQLite database path")
	f.String("since", "", "Only turns at or after this time (RFC 3339 or YYYY-MM-DD)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
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

	v.SetEnvPrefix("STUDIBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studibot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/studibot")
	v.AddConfigPath("/etc/studibot")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := prompts.Load(prompts.Templates); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdminToken(db, v.GetString("admin-token")); err != nil {
		return fmt.Errorf("seed admin token: %w", err)
	}

	creds, err := openCredentials(v)
	if err != nil {
		return err
	}

	salt := v.GetString("log-salt")
	if salt == defaultLogSalt {
		slog.Warn("using the default log salt, set --log-salt or STUDIBOT_LOG_SALT")
	}
	envKey := v.GetString("llm-key")
	if envKey == "" {
		envKey = os.Getenv("OPENAI_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	states := state.NewMemory(v.GetDuration("state-ttl"), nil)
	go states.RunJanitor(ctx, time.Minute)
	scrapes := cache.New(v.GetDuration("cache-ttl"), nil)
	go scrapes.RunJanitor(ctx, 5*time.Minute)

	llmCfg := llm.Config{
		BaseURL: v.GetString("llm-url"),
		Model:   v.GetString("llm-model"),
		Timeout: v.GetDuration("llm-timeout"),
	}
	svc := chat.New(
		chat.Config{EnvAPIKey: envKey, LogSalt: salt},
		chat.Deps{
			States: states,
			Router: intent.New(states, llm.DefaultRetry),
			Cache:  scrapes,
			Fetcher: scraper.New(scraper.Config{
				MaxWait:     v.GetDuration("scrape-wait"),
				MaxBrowsers: v.GetInt64("max-browsers"),
				Headless:    v.GetBool("headless"),
				BrowserBin:  v.GetString("browser-bin"),
			}),
			Backends:    func(apiKey string) chat.Backend { return llm.New(llmCfg, apiKey) },
			Credentials: creds,
			Turns:       db,
			Emotion:     emotion.New(),
		},
	)

	h := handler.New(svc, creds, db, handler.Config{ExposeCredentials: v.GetBool("expose-credentials")})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(v.GetDuration("request-timeout")))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", llmCfg.Model,
		"llm_url", llmCfg.BaseURL,
		"lang", lang,
		"max_browsers", v.GetInt64("max-browsers"),
		"state_ttl", v.GetDuration("state-ttl"),
		"cache_ttl", v.GetDuration("cache-ttl"),
		"credentials", creds.Path(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	since, err := handler.ParseSince(v.GetString("since"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.Export(since, time.Now())
	if err != nil {
		return fmt.Errorf("export turns: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported turns", "count", export.NumTurns)
	return nil
}

// seedAdminToken stores the bcrypt hash of token. An empty token keeps
// whatever hash is already stored.
func seedAdminToken(db *store.Store, token string) error {
	if token == "" {
		hash, err := db.AdminTokenHash()
		if err != nil {
			return err
		}
		if hash == "" {
			slog.Warn("no admin token configured, /credentials and /admin accept loopback clients only")
		}
		return nil
	}

	hash, err := handler.HashToken(token)
	if err != nil {
		return fmt.Errorf("hash admin token: %w", err)
	}
	if err := db.SetAdminTokenHash(hash); err != nil {
		return err
	}
	slog.Info("admin token updated")
	return nil
}

func openCredentials(v *viper.Viper) (*credentials.Store, error) {
	dir := v.GetString("credentials-dir")
	if dir == "" {
		d, err := credentials.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("credentials dir: %w", err)
		}
		dir = d
	}
	s, err := credentials.New(dir)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	return s, nil
}
