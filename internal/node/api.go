package node

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// SendRequest is the body of POST /v1/packets.
type SendRequest struct {
	PID uint32 `json:"pid"`
	SID uint64 `json:"sid"`
}

type StatusResponse struct {
	Index     int    `json:"index"`
	PublicKey string `json:"public_key"`
	MaxHops   int    `json:"max_hops"`
	Stats     Stats  `json:"stats"`
}

// API serves the node endpoints and, when a board server is attached,
// the board endpoints on the same listener.
type API struct {
	addr  string
	relay *Relay
	board *board.Server
	srv   *http.Server
	ln    net.Listener
}

func NewAPI(addr string, r *Relay, bs *board.Server) *API {
	return &API{addr: addr, relay: r, board: bs}
}

func (a *API) Name() string { return "node-api" }

func (a *API) Addr() string {
	if a.ln == nil {
		return a.addr
	}
	return a.ln.Addr().String()
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware)
	r.Post("/v1/packets", a.handleSend)
	r.Get("/v1/status", a.handleStatus)
	if a.board != nil {
		a.board.RegisterRoutes(r)
	}
	return r
}

func (a *API) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.ln = ln
	a.srv = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorJ("node_api", map[string]any{"op": "serve", "result": "error", "err": err.Error()})
		}
	}()
	logger.InfoJ("node_api", map[string]any{"op": "start", "result": "ok", "addr": ln.Addr().String()})
	return nil
}

func (a *API) Stop(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		metrics.Inc("api_requests_total", map[string]string{"route": "send_packet", "code": "400"})
		reply(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	e, err := a.relay.Send(r.Context(), req.PID, req.SID)
	code := http.StatusCreated
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicatePacket):
		code = http.StatusConflict
	case errors.Is(err, ErrBusy):
		code = http.StatusTooManyRequests
	default:
		code = http.StatusInternalServerError
	}
	metrics.Inc("api_requests_total", map[string]string{"route": "send_packet", "code": strconv.Itoa(code)})
	if err != nil {
		reply(w, code, map[string]string{"error": err.Error()})
		return
	}
	reply(w, code, e)
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	pk, _ := a.relay.PublicKey().MarshalText()
	reply(w, http.StatusOK, StatusResponse{
		Index:     a.relay.Index(),
		PublicKey: string(pk),
		MaxHops:   a.relay.engine.Params().MaxHops,
		Stats:     a.relay.Stats(),
	})
}
