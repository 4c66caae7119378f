package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/storeaudit/audit"
	"github.com/hazyhaar/storeaudit/kit"
	"github.com/hazyhaar/storeaudit/observability"
	"github.com/hazyhaar/storeaudit/shield"
)

func main() {
	port := env("PORT", "8090")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := audit.Config{
		DataDir:          env("DATA_DIR", "data"),
		BrowserRemoteURL: os.Getenv("BROWSER_URL"),
		HTTPFallback:     os.Getenv("HTTP_FALLBACK") != "",
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		WeightsFile:      os.Getenv("WEIGHTS_FILE"),
	}

	svc, err := audit.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("service init", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Audits triggered over HTTP outlive the request that started them;
	// they stop only on process shutdown.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go func() {
		<-ctx.Done()
		runCancel()
	}()

	hb := observability.NewHeartbeatWriter(svc.DB(), "storeaudit", 15*time.Second)
	hb.Start(ctx)
	defer hb.Stop()

	// Optional Basic Auth on audit triggering. Status and export reads
	// stay public: audit keys are unguessable capability tokens.
	var adminHash []byte
	if pw := os.Getenv("ADMIN_PASSWORD"); pw != "" {
		adminHash, err = bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash admin password", "error", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/audits", func(r chi.Router) {
		r.With(requireAdmin(adminHash)).Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL    string `json:"url"`
				Locale string `json:"locale"`
				Wait   bool   `json:"wait"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, 400, err)
				return
			}
			if body.Locale == "" {
				body.Locale = firstLanguage(req.Header.Get("Accept-Language"))
			}

			keys, err := svc.Keys(body.URL, body.Locale)
			if err != nil {
				writeError(w, 400, err)
				return
			}

			if body.Wait {
				res, err := svc.RunAudit(kit.WithRequestID(runCtx, kit.GetRequestID(req.Context())), body.URL, body.Locale)
				if err != nil {
					writeError(w, 400, err)
					return
				}
				writeJSON(w, 200, res)
				return
			}

			go func() {
				if _, err := svc.RunAudit(runCtx, body.URL, body.Locale); err != nil {
					shield.GetLogger(req.Context()).Error("audit run", "error", err)
				}
			}()
			writeJSON(w, 202, map[string]any{
				"keys":       keys,
				"status_url": "/api/audits/" + keys.Audit.String(),
			})
		})

		r.Get("/{auditKey}", func(w http.ResponseWriter, req *http.Request) {
			js, err := svc.Status(req.Context(), chi.URLParam(req, "auditKey"))
			if err != nil {
				writeStatusError(w, err)
				return
			}
			writeJSON(w, 200, js)
		})

		r.Get("/{auditKey}/events", func(w http.ResponseWriter, req *http.Request) {
			events, err := svc.Events(req.Context(), chi.URLParam(req, "auditKey"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, events)
		})

		r.Get("/{auditKey}/tickets", func(w http.ResponseWriter, req *http.Request) {
			tickets, err := svc.Tickets(req.Context(), chi.URLParam(req, "auditKey"))
			if err != nil {
				writeStatusError(w, err)
				return
			}
			writeJSON(w, 200, tickets)
		})

		r.Get("/{auditKey}/evidence", func(w http.ResponseWriter, req *http.Request) {
			evs, err := svc.EvidenceList(req.Context(), chi.URLParam(req, "auditKey"))
			if err != nil {
				writeStatusError(w, err)
				return
			}
			writeJSON(w, 200, evs)
		})

		r.Get("/{auditKey}/report", func(w http.ResponseWriter, req *http.Request) {
			js, err := svc.Status(req.Context(), chi.URLParam(req, "auditKey"))
			if err != nil {
				writeStatusError(w, err)
				return
			}
			if js.HTMLPath == "" {
				writeJSON(w, 409, map[string]string{"error": "report not rendered yet", "state": string(js.State)})
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			http.ServeFile(w, req, js.HTMLPath)
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// requireAdmin enforces Basic Auth against the bcrypt hash. A nil hash
// means auth is disabled.
func requireAdmin(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == nil {
				next.ServeHTTP(w, r)
				return
			}
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte("admin")) != 1 ||
				bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="storeaudit"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// firstLanguage extracts the first tag of an Accept-Language header.
func firstLanguage(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(strings.TrimSpace(first), ";")
	tag = strings.TrimSpace(tag)
	if tag == "*" {
		return ""
	}
	return tag
}

func writeStatusError(w http.ResponseWriter, err error) {
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, 404, err)
		return
	}
	writeError(w, 500, err)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
