// Package admin provides a local, operator-only HTTP surface for
// inspecting a running node: its panorama, mempool occupancy, and
// catch-up status. It deliberately stays on stdlib net/http rather than
// the teacher's grpc gateway — nothing in this scheduler has an external
// binary RPC surface to front (its only boundary is the in-process
// Effects/StateView/Emitter interfaces eventloop drives), so this is the
// entire external-facing surface a node exposes.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/casper-network/highway/internal/highway/state"
	"github.com/casper-network/highway/internal/mempool"
	"github.com/casper-network/highway/internal/sync"
	"go.uber.org/zap"
)

// Server provides admin/debug endpoints. These are intended for
// operators, not exposed publicly.
type Server struct {
	httpServer *http.Server
	view       *state.State
	mempool    *mempool.Buffer
	catchup    *sync.Catchup
	logger     *zap.Logger
	lis        net.Listener
}

// NewServer creates an admin debug server. catchup may be nil, in which
// case /admin/sync reports it as unavailable.
func NewServer(addr string, view *state.State, mp *mempool.Buffer, catchup *sync.Catchup, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		view:    view,
		mempool: mp,
		catchup: catchup,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/panorama", s.handlePanorama)
	mux.HandleFunc("/admin/mempool", s.handleMempoolStatus)
	mux.HandleFunc("/admin/sync", s.handleSyncStatus)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// Start begins serving admin endpoints.
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.lis, err = net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("admin server starting", zap.String("addr", s.lis.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(s.lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Name returns the service name.
func (s *Server) Name() string {
	return "admin"
}

func (s *Server) handlePanorama(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := map[string]any{
		"available": s.view != nil,
	}
	if s.view != nil {
		p := s.view.Panorama()
		entries := make(map[string]any, len(p))
		for idx, obs := range p {
			if obs.None() {
				continue
			}
			entries[strconv.Itoa(int(idx))] = obs.Kind
		}
		result["panorama"] = entries
		result["total_weight"] = uint64(s.view.TotalWeight())
		result["faulty"] = s.view.FaultyValidators()
	}

	writeJSON(w, result)
}

func (s *Server) handleMempoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := map[string]any{
		"available": s.mempool != nil,
	}
	if s.mempool != nil {
		result["size"] = s.mempool.Size()
	}

	writeJSON(w, result)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := map[string]any{
		"available": s.catchup != nil,
	}
	if s.catchup != nil {
		result["status"] = s.catchup.Status().String()
		result["votes_fetched"] = s.catchup.VotesFetched()
	}

	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
