package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/chase3718/guitarbot/assign"
	"github.com/chase3718/guitarbot/cache"
	"github.com/chase3718/guitarbot/library"
	"github.com/chase3718/guitarbot/player"
)

// Server exposes the player over HTTP.
type Server struct {
	player  *player.Player
	library *library.Library
	cache   *cache.Cache
	logger  *slog.Logger
	origins []string
	router  *mux.Router
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAllowedOrigins sets the CORS origins; all origins are allowed by
// default.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New wires the routes. c may be nil when caching is disabled.
func New(p *player.Player, lib *library.Library, c *cache.Cache, opts ...Option) *Server {
	s := &Server{player: p, library: lib, cache: c, logger: slog.Default(), origins: []string{"*"}}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "server")

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/music", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/music/{name}/play", s.handlePlay).Methods(http.MethodPost)
	r.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/tempo", s.handleTempo).Methods(http.MethodPut)
	r.HandleFunc("/cache", s.handleClearCache).Methods(http.MethodDelete)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the routes behind the CORS middleware.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}).Handler(s.router)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server: listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server: shutting down")
	return srv.Shutdown(shutdownCtx)
}

type playResponse struct {
	Session string `json:"session"`
	Piece   string `json:"piece"`
	Stats   stats  `json:"stats"`
}

type stats struct {
	Chords  int    `json:"chords"`
	Notes   int    `json:"notes"`
	Played  int    `json:"played"`
	Missed  int    `json:"missed"`
	Summary string `json:"summary"`
}

func toStats(st assign.Stats) stats {
	return stats{Chords: st.Chords, Notes: st.Notes, Played: st.Hits, Missed: st.Misses, Summary: st.String()}
}

type tempoRequest struct {
	BPM float64 `json:"bpm"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	pieces, err := s.library.Pieces()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pieces)
}

// handlePlay computes the performance in the request and plays it in the
// background; the response carries the session id.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	content, err := s.library.Read(name)
	if errors.Is(err, library.ErrNotFound) {
		s.fail(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if s.player.Status().Playing {
		s.fail(w, http.StatusConflict, player.ErrBusy)
		return
	}

	useCache := r.URL.Query().Get("cache") != "false"
	perf, st, err := s.player.ComputePerformance(r.Context(), content, useCache)
	if err != nil {
		s.fail(w, http.StatusUnprocessableEntity, err)
		return
	}
	id, done, err := s.player.PlayAsync(context.Background(), perf)
	if errors.Is(err, player.ErrBusy) {
		s.fail(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	go func() {
		if err := <-done; err != nil && !errors.Is(err, player.ErrStopped) {
			s.logger.Error("server: playback failed", "piece", name, "session", id, "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, playResponse{Session: id, Piece: name, Stats: toStats(st)})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.player.Status().Playing {
		s.fail(w, http.StatusConflict, player.ErrBusy)
		return
	}
	if err := s.player.ResetFrets(); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if req.BPM <= 0 {
		s.fail(w, http.StatusBadRequest, errors.New("bpm must be positive"))
		return
	}
	s.player.SetTempo(req.BPM)
	writeJSON(w, http.StatusOK, tempoRequest{BPM: s.player.Tempo()})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]int{"removed": 0})
		return
	}
	n, err := s.cache.Clear()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("server: request failed", "status", code, "err", err)
	} else {
		s.logger.Debug("server: request rejected", "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
