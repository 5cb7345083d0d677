package dashboard

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/store"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

// Server is the dashboard HTTP server that serves the web UI,
// REST API, and WebSocket bridge.
type Server struct {
	ctrl      *interview.Controller
	bridge    *Bridge
	cfg       *config.Config
	srv       *http.Server
	accessKey string
}

// NewServer creates a dashboard server for ctrl.
func NewServer(ctrl *interview.Controller, cfg *config.Config) *Server {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)

	return &Server{
		ctrl:      ctrl,
		bridge:    NewBridge(ctrl, cfg.Interview.Languages),
		cfg:       cfg,
		accessKey: fmt.Sprintf("%x", keyBytes),
	}
}

// AccessKey is required (as ?key=) by clients connecting from another host.
func (s *Server) AccessKey() string {
	return s.accessKey
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// discards the live interview session.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // WebSocket needs no write timeout
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down dashboard server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.bridge.Close()
		s.srv.Shutdown(shutdownCtx)
		s.ctrl.Close()
	}()

	slog.Info("starting dashboard server", "addr", addr)
	if !isLoopbackHost(s.cfg.Server.Host) {
		slog.Info("remote access requires the dashboard key", "url", fmt.Sprintf("http://%s/?key=%s", addr, s.accessKey))
	}
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server error: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		slog.Error("failed to create sub FS for static files", "error", err)
		return
	}

	mux.Handle("GET /", s.guard(http.FileServer(http.FS(staticFS))))
	mux.Handle("GET /ws", s.guard(http.HandlerFunc(s.bridge.HandleWS)))
	mux.Handle("GET /api/state", s.guard(http.HandlerFunc(s.handleState)))
	mux.Handle("POST /api/restart", s.guard(http.HandlerFunc(s.handleRestart)))
	mux.Handle("GET /api/export", s.guard(http.HandlerFunc(s.handleDownload)))
	mux.Handle("POST /api/export", s.guard(http.HandlerFunc(s.handleSaveExport)))
	mux.Handle("GET /api/exports", s.guard(http.HandlerFunc(s.handleListExports)))
}

// --- REST Handlers ---

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bridge.statePayload(s.ctrl.State()))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req RestartPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ok, err := s.ctrl.Restart(interview.ConfirmFunc(func(string) (bool, error) {
		return req.Confirmed, nil
	}))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"restarted": ok})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.State()
	if len(st.Turns) == 0 {
		http.Error(w, "nothing to export yet", http.StatusNotFound)
		return
	}
	meta := s.exportMeta(st)
	data, err := store.MarshalDocument(store.RenderTranscript(meta, st.Turns))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", store.ExportFilename(meta)))
	w.Write(data)
}

func (s *Server) handleSaveExport(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.State()
	meta := s.exportMeta(st)
	path := filepath.Join(config.ExpandHome(s.cfg.Export.Dir), store.ExportFilename(meta))

	if err := store.ExportTranscript(path, meta, st.Turns); err != nil {
		if errors.Is(err, transcript.ErrEmpty) {
			http.Error(w, "nothing to export yet", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("transcript exported", "path", path, "turns", len(st.Turns))
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"path": path})
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := store.ListExports(config.ExpandHome(s.cfg.Export.Dir))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if exports == nil {
		exports = []store.ExportSummary{}
	}
	writeJSON(w, exports)
}

func (s *Server) exportMeta(st interview.State) store.ExportMeta {
	return store.ExportMeta{
		SessionID:  st.SessionID,
		Language:   st.Language,
		Model:      s.cfg.Model.Name,
		ExportedAt: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- Access control ---
//
// Loopback clients always pass. Anyone else needs ?key=<accessKey> once;
// the key is then kept in a cookie and stripped from the URL.

const accessKeyCookie = "interviewpro_key"

func (s *Server) allowed(r *http.Request) bool {
	// Tunnelled requests arrive from loopback but carry forwarding headers.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && isLoopbackHost(host) && r.Header.Get("X-Forwarded-For") == "" {
		return true
	}
	if r.URL.Query().Get("key") == s.accessKey {
		return true
	}
	if c, err := r.Cookie(accessKeyCookie); err == nil && c.Value == s.accessKey {
		return true
	}
	return false
}

func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(w, "access key required: open the URL printed by `interviewpro serve`", http.StatusUnauthorized)
			return
		}
		if key := r.URL.Query().Get("key"); key != "" && key == s.accessKey {
			http.SetCookie(w, &http.Cookie{
				Name:     accessKeyCookie,
				Value:    s.accessKey,
				Path:     "/",
				MaxAge:   86400,
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			clean := *r.URL
			q := clean.Query()
			q.Del("key")
			clean.RawQuery = q.Encode()
			http.Redirect(w, r, clean.String(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
