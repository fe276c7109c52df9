// Package server wires the admin/health HTTP surface: a stdlib
// net/http.ServeMux (api-gateway/internal/server uses gorilla/mux, but
// SPEC_FULL commits this repository to stdlib mux plus an adapted
// middleware package, so that dependency is not carried) serving
// /healthz, /readyz, and the /admin/* operator verbs over
// internal/admin.Admin, grounded on api-gateway/internal/server/server.go's
// NewServer/SetupRoutes/Start/Shutdown lifecycle and
// storage-node/internal/health/health_check.go's liveness/readiness
// handler shape.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ringdb/ringdb/internal/admin"
	coordread "github.com/ringdb/ringdb/internal/coordinator/read"
	coordwrite "github.com/ringdb/ringdb/internal/coordinator/write"
	"github.com/ringdb/ringdb/internal/consistency"
	"github.com/ringdb/ringdb/internal/localstore"
	"github.com/ringdb/ringdb/internal/ring"
	"github.com/ringdb/ringdb/internal/server/middleware"
)

// Deps is the explicit collaborator bundle this node's main constructs
// once and threads through, in place of package-level singletons.
type Deps struct {
	Admin              *admin.Admin
	ReadCoordinator    *coordread.Coordinator
	WriteCoordinator   *coordwrite.Coordinator
	Logger             *zap.Logger
	Ready              func() bool
	Live               func() bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server is the admin/health HTTP surface.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New constructs a Server bound to addr. Callers apply their own
// shutdown deadline to the context passed to Shutdown, mirroring
// api-gateway/cmd/server/main.go building a
// context.WithTimeout(cfg.Server.ShutdownTimeout) around the Shutdown
// call rather than storing the deadline on Server.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}

	mux := http.NewServeMux()
	s.routes(mux)

	chainLinks := []func(http.Handler) http.Handler{
		middleware.Recovery(deps.Logger),
		middleware.RequestID,
		middleware.Logging(deps.Logger),
	}
	if deps.RateLimitPerSecond > 0 {
		rl := middleware.NewRateLimiter(deps.RateLimitPerSecond, deps.RateLimitBurst, deps.Logger)
		chainLinks = append(chainLinks, rl.Limit)
	}
	chain := middleware.Chain(chainLinks...)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      chain(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)

	mux.HandleFunc("/admin/ring", s.handleRing)
	mux.HandleFunc("/admin/info", s.handleInfo)
	mux.HandleFunc("/admin/cfstats", s.handleCompactionStats)
	mux.HandleFunc("/admin/tpstats", s.handleThreadPoolStats)
	mux.HandleFunc("/admin/drain", s.handleDrain)
	mux.HandleFunc("/admin/decommission", s.handleDecommission)
	mux.HandleFunc("/admin/move", s.handleMove)
	mux.HandleFunc("/admin/loadbalance", s.handleLoadBalance)
	mux.HandleFunc("/admin/removetoken", s.handleRemoveToken)
	mux.HandleFunc("/admin/resumebootstrap", s.handleResumeBootstrap)
	mux.HandleFunc("/admin/setcachecapacity", s.handleSetCacheCapacity)
	mux.HandleFunc("/admin/compactionthreshold", s.handleCompactionThreshold)
	mux.HandleFunc("/admin/setstreamthroughput", s.handleSetStreamThroughput)
	mux.HandleFunc("/admin/gossipinfo", s.handleGossipInfo)
	mux.HandleFunc("/admin/streams", s.handleStreams)
	mux.HandleFunc("/admin/cancelstreamout", s.handleCancelStreamOut)

	mux.HandleFunc("/data/read", s.handleDataRead)
	mux.HandleFunc("/data/write", s.handleDataWrite)

	mux.HandleFunc("/admin/flush", s.handleFlush)
	mux.HandleFunc("/admin/repair", s.handleRepair)
	mux.HandleFunc("/admin/cleanup", s.handleCleanup)
	mux.HandleFunc("/admin/compact", s.handleCompact)
	mux.HandleFunc("/admin/cfhistograms", s.handleCfHistograms)
	mux.HandleFunc("/admin/snapshot", s.handleSnapshot)
	mux.HandleFunc("/admin/clearsnapshot", s.handleClearSnapshot)
	mux.HandleFunc("/admin/gossipstop", s.handleGossipStop)
	mux.HandleFunc("/admin/gossipstart", s.handleGossipStart)
	mux.HandleFunc("/admin/gossippurge", s.handleGossipPurge)
}

// Start runs the server until it errors or Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	live := s.deps.Live == nil || s.deps.Live()
	writeJSON(w, statusCodeFor(live), map[string]bool{"live": live})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.deps.Ready == nil || s.deps.Ready()
	writeJSON(w, statusCodeFor(ready), map[string]bool{"ready": ready})
}

func statusCodeFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.Ring())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.Info())
}

func (s *Server) handleCompactionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.CompactionStats())
}

func (s *Server) handleThreadPoolStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.ThreadPoolStats())
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Drain(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "draining"})
}

func (s *Server) handleDecommission(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Decommission(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "decommissioned"})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := s.deps.Admin.Move(token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "moved", "token": token})
}

func (s *Server) handleLoadBalance(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.LoadBalance(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "balanced"})
}

func (s *Server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token query parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Admin.RemoveToken(token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "token": token})
}

func (s *Server) handleResumeBootstrap(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.ResumeBootstrap(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleSetCacheCapacity(w http.ResponseWriter, r *http.Request) {
	bytes, err := strconv.ParseInt(r.URL.Query().Get("bytes"), 10, 64)
	if err != nil {
		http.Error(w, "bytes query parameter must be an integer", http.StatusBadRequest)
		return
	}
	s.deps.Admin.SetCacheCapacity(bytes)
	writeJSON(w, http.StatusOK, map[string]int64{"cache_capacity_bytes": bytes})
}

func (s *Server) handleCompactionThreshold(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "threshold query parameter must be an integer", http.StatusBadRequest)
			return
		}
		s.deps.Admin.SetCompactionThreshold(threshold)
	}
	writeJSON(w, http.StatusOK, map[string]int{"compaction_threshold": s.deps.Admin.GetCompactionThreshold()})
}

func (s *Server) handleSetStreamThroughput(w http.ResponseWriter, r *http.Request) {
	mbps, err := strconv.Atoi(r.URL.Query().Get("mbps"))
	if err != nil {
		http.Error(w, "mbps query parameter must be an integer", http.StatusBadRequest)
		return
	}
	s.deps.Admin.SetStreamThroughput(mbps)
	writeJSON(w, http.StatusOK, map[string]int{"stream_throughput_mbps": mbps})
}

func (s *Server) handleGossipInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.deps.Admin.GossipInfo()))
}

// handleStreams reports the controller's currently tracked
// replica-restoration progress, without triggering a new round of
// restoration (that requires a liveSources callback this HTTP surface
// has no way to supply; RestoreReplicas is invoked internally by the
// node daemon on topology change instead).
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.CurrentStreams())
}

func (s *Server) handleCancelStreamOut(w http.ResponseWriter, r *http.Request) {
	rangeKey := r.URL.Query().Get("range")
	if err := s.deps.Admin.CancelStreamOut(rangeKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel-requested", "range": rangeKey})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Flush(r.URL.Query().Get("keyspace")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Repair(r.URL.Query().Get("keyspace")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "repair-requested"})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Cleanup(r.URL.Query().Get("keyspace")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleanup-requested"})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Compact(r.URL.Query().Get("keyspace")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "compact-requested"})
}

func (s *Server) handleCfHistograms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Admin.CfHistograms())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.Snapshot(r.URL.Query().Get("tag")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "snapshot-requested"})
}

func (s *Server) handleClearSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.ClearSnapshot(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "clear-snapshot-requested"})
}

func (s *Server) handleGossipStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.GossipStop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "gossip-stop-requested"})
}

func (s *Server) handleGossipStart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.GossipStart(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "gossip-start-requested"})
}

func (s *Server) handleGossipPurge(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.GossipPurge(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "gossip-purge-requested"})
}

// handleDataRead is the client-facing entry point into the read
// coordinator: a thin HTTP front over Coordinator.Read, standing in for
// the gRPC client API spec.md leaves unspecified at the wire level.
func (s *Server) handleDataRead(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadCoordinator == nil {
		http.Error(w, "read coordinator not configured", http.StatusServiceUnavailable)
		return
	}
	table := r.URL.Query().Get("table")
	key := r.URL.Query().Get("key")
	level, err := consistency.Normalize(r.URL.Query().Get("level"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.deps.ReadCoordinator.Read(r.Context(), ring.Table(table), key, level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDataWrite is the client-facing entry point into the write
// coordinator: a thin HTTP front over Coordinator.Write.
func (s *Server) handleDataWrite(w http.ResponseWriter, r *http.Request) {
	if s.deps.WriteCoordinator == nil {
		http.Error(w, "write coordinator not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	level, err := consistency.Normalize(q.Get("level"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mut := localstore.Mutation{
		Table:  q.Get("table"),
		Key:    q.Get("key"),
		Column: q.Get("column"),
		Value:  []byte(q.Get("value")),
	}
	if ts, err := strconv.ParseInt(q.Get("timestamp"), 10, 64); err == nil {
		mut.Timestamp = ts
	} else {
		mut.Timestamp = time.Now().UnixNano()
	}

	result, err := s.deps.WriteCoordinator.Write(r.Context(), mut, level, q.Get("idempotency_key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
