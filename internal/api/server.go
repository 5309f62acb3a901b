package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/snapshot"
	"BandwidthBazaar/internal/state"
	"BandwidthBazaar/internal/storage"
)

const (
	// maxTxSize is the maximum transaction size in bytes.
	maxTxSize = 64 << 10 // 64 KB
)

// HistoryReader lists journaled operations for an owner.
type HistoryReader interface {
	ListByOwner(owner string, limit int) ([]history.Entry, error)
}

// Option configures a Server.
type Option func(*Server)

// WithHistory serves GET /users/{pubkey}/history from h.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithSnapshots serves GET /snapshot from db.
func WithSnapshots(db *storage.Storage) Option {
	return func(s *Server) {
		s.snapshotDB = db
	}
}

// WithReplayWindow sets the accepted nonce drift.
func WithReplayWindow(d time.Duration) Option {
	return func(s *Server) {
		s.replayWindow = d
	}
}

// Server is the HTTP API server.
type Server struct {
	addr         string           // addr is the HTTP listen address
	state        *state.State     // state executes transactions
	ledger       *ledger.Ledger   // ledger serves reads
	history      HistoryReader    // history is nil when the journal is disabled
	snapshotDB   *storage.Storage // snapshotDB is nil when snapshots are disabled
	replayWindow time.Duration    // replayWindow bounds nonce drift
	replay       *ReplayGuard     // replay rejects stale and duplicate transactions
	server       *http.Server     // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, st *state.State, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		state:  st,
		ledger: st.Ledger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.replay = NewReplayGuard(s.replayWindow, s.ledger)

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", s.handleSubmitTx)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /users/{pubkey}", s.handleUser)
	mux.HandleFunc("GET /users/{pubkey}/history", s.handleHistory)
	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	defer s.replay.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleSubmitTx handles POST /tx requests.
// The transaction is authenticated, checked for replay, then executed synchronously.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	receipt, err := s.Submit(body)
	if err != nil {
		writeRejection(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// writeRejection writes a failed submission.
func writeRejection(w http.ResponseWriter, err error) {
	var rej *Rejection
	if !errors.As(err, &rej) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rej.Code == "" {
		writeError(w, rej.Status, rej.Message)
		return
	}

	writeCodedError(w, rej.Status, rej.Code, rej.Message)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	g, err := s.ledger.Aggregate()
	if errors.Is(err, ledger.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"initialized": false})
		return
	}

	if err != nil {
		s.writeReadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAggregateView(g))
}

// handleUser handles GET /users/{pubkey} requests.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id, err := ledger.ParseIdentity(r.PathValue("pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.ledger.User(id)
	if err != nil {
		s.writeReadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserView(u))
}

// handleHistory handles GET /users/{pubkey}/history requests.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history journal disabled")
		return
	}

	id, err := ledger.ParseIdentity(r.PathValue("pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entries, err := s.history.ListByOwner(id.String(), limit)
	if err != nil {
		s.writeReadError(w, err)
		return
	}

	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleAudit handles GET /audit requests.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Audit()
	if err != nil {
		s.writeReadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"users":            report.Users,
		"sumBandwidthMb":   report.SumBandwidthMB,
		"sumTokensEarned":  report.SumTokensEarned,
		"sumTokensClaimed": report.SumTokensClaimed,
		"aggregate":        newAggregateView(&report.Aggregate),
	})
}

// handleSnapshot handles GET /snapshot requests with a zstd-compressed snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshotDB == nil {
		writeError(w, http.StatusNotFound, "snapshots disabled")
		return
	}

	data, info, err := snapshot.Export(s.snapshotDB, time.Now())
	if err != nil {
		logger.Error("snapshot export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")

		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("X-Snapshot-Checksum", info.Checksum)
	w.Header().Set("X-Snapshot-Records", strconv.Itoa(info.Records))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeReadError maps a read failure to a status code.
func (s *Server) writeReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeCodedError(w, http.StatusNotFound, ledger.Code(err), err.Error())
	default:
		logger.Error("read failed", "error", err)
		writeCodedError(w, http.StatusInternalServerError, ledger.Code(err), err.Error())
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeCodedError writes an error response carrying an error kind.
func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
