package board

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// Server exposes a Board over HTTP:
//
//	POST /v1/entries          post an entry, 201 with the stored entry
//	GET  /v1/entries          all entries in post order
//	GET  /v1/entries?ppk=a.b  entries addressed to hex(ppk1).hex(ppk2)
//	GET  /v1/entries/{id}     one entry
type Server struct {
	addr   string
	board  Board
	onPost func(Entry)
	srv    *http.Server
	ln     net.Listener
}

func NewServer(addr string, b Board) *Server { return &Server{addr: addr, board: b} }

// OnPost registers a hook run after each accepted post.
func (s *Server) OnPost(fn func(Entry)) { s.onPost = fn }

func (s *Server) Name() string { return "board-http" }

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/v1/entries", s.handlePost)
	r.Get("/v1/entries", s.handleList)
	r.Get("/v1/entries/{id}", s.handleGet)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorJ("board_http", map[string]any{"op": "serve", "result": "error", "err": err.Error()})
		}
	}()
	logger.InfoJ("board_http", map[string]any{"op": "start", "result": "ok", "addr": ln.Addr().String()})
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var e Entry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<20)).Decode(&e); err != nil {
		metrics.Inc("api_requests_total", map[string]string{"route": "post_entry", "code": "400"})
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	stored, err := s.board.Post(r.Context(), e)
	if errors.Is(err, ErrInvalidEntry) {
		metrics.Inc("api_requests_total", map[string]string{"route": "post_entry", "code": "400"})
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		metrics.Inc("api_requests_total", map[string]string{"route": "post_entry", "code": "500"})
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if s.onPost != nil {
		s.onPost(stored)
	}
	metrics.Inc("api_requests_total", map[string]string{"route": "post_entry", "code": "201"})
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		out []Entry
		err error
	)
	if q := r.URL.Query().Get("ppk"); q != "" {
		ppk, perr := keys.ParseDiversified(q)
		if perr != nil {
			metrics.Inc("api_requests_total", map[string]string{"route": "list_entries", "code": "400"})
			writeErr(w, http.StatusBadRequest, perr)
			return
		}
		out, err = s.board.For(r.Context(), ppk)
	} else {
		out, err = s.board.All(r.Context())
	}
	if err != nil {
		metrics.Inc("api_requests_total", map[string]string{"route": "list_entries", "code": "500"})
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if out == nil {
		out = []Entry{}
	}
	metrics.Inc("api_requests_total", map[string]string{"route": "list_entries", "code": "200"})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	all, err := s.board.All(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for _, e := range all {
		if e.ID == id {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeErr(w, http.StatusNotFound, errors.New("entry not found"))
}
