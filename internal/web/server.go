// Package web exposes the HTTP API: the manual trade trigger, paginated trade
// and balance history, and the asset registry.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TradeRunner runs one trading cycle on demand.
type TradeRunner interface {
	Execute(ctx context.Context) ([]domain.Trade, error)
}

// TradeLister pages through the trade audit trail.
type TradeLister interface {
	List(ctx context.Context, cursor uint64, limit int) (*storage.Page[domain.Trade], error)
	ListByAsset(ctx context.Context, assetID, cursor uint64, limit int) (*storage.Page[domain.Trade], error)
}

// BalanceLister pages through balance snapshots.
type BalanceLister interface {
	List(ctx context.Context, cursor uint64, limit int) (*storage.Page[domain.Balance], error)
}

// AssetRegistry manages the set of tradeable assets.
type AssetRegistry interface {
	ListActive(ctx context.Context) ([]domain.Asset, error)
	ListAll(ctx context.Context) ([]domain.Asset, error)
	GetByID(ctx context.Context, id uint64) (*domain.Asset, error)
	CreateOrRestore(ctx context.Context, name string) (*domain.Asset, error)
	Retire(ctx context.Context, id uint64) error
}

// Server exposes the JSON API over plain net/http.
type Server struct {
	addr     string
	runner   TradeRunner
	trades   TradeLister
	balances BalanceLister
	assets   AssetRegistry
	logger   *zap.Logger
}

func NewServer(addr string, runner TradeRunner, trades TradeLister, balances BalanceLister, assets AssetRegistry, logger *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		runner:   runner,
		trades:   trades,
		balances: balances,
		assets:   assets,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/trade", s.handleExecuteTrades)
	mux.HandleFunc("GET /api/v1/trade/transactions", s.handleListTrades)
	mux.HandleFunc("GET /api/v1/balances", s.handleListBalances)
	mux.HandleFunc("GET /api/v1/assets", s.handleListAssets)
	mux.HandleFunc("POST /api/v1/assets", s.handleCreateAsset)
	mux.HandleFunc("DELETE /api/v1/assets/{id}", s.handleRetireAsset)
	mux.HandleFunc("GET /api/v1/assets/{id}/transactions", s.handleListAssetTrades)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http api listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleExecuteTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.runner.Execute(r.Context())
	if err != nil {
		s.internalError(w, "trade execution failed", err)
		return
	}
	if trades == nil {
		// another worker holds the execution lock
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a trading cycle is already running",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	cursor, limit, err := pageParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page, err := s.trades.List(r.Context(), cursor, limit)
	if err != nil {
		s.internalError(w, "list trades failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	cursor, limit, err := pageParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page, err := s.balances.List(r.Context(), cursor, limit)
	if err != nil {
		s.internalError(w, "list balances failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	list := s.assets.ListActive
	if r.URL.Query().Get("all") == "true" {
		list = s.assets.ListAll
	}

	assets, err := list(r.Context())
	if err != nil {
		s.internalError(w, "list assets failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": assets})
}

func (s *Server) handleListAssetTrades(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid asset id"})
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if _, err := s.assets.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "asset not found"})
			return
		}
		s.internalError(w, "look up asset failed", err)
		return
	}

	page, err := s.trades.ListByAsset(r.Context(), id, cursor, limit)
	if err != nil {
		s.internalError(w, "list asset trades failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.ToUpper(strings.TrimSpace(req.Name))
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "asset name is required"})
		return
	}

	asset, err := s.assets.CreateOrRestore(r.Context(), req.Name)
	if err != nil {
		s.internalError(w, "create asset failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) handleRetireAsset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid asset id"})
		return
	}

	if err := s.assets.Retire(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "asset not found"})
			return
		}
		s.internalError(w, "retire asset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

// pageParams reads the cursor/limit query pair. Cursor 0 means the first
// page; limit is clamped to [1, 100] with 20 as the default.
func pageParams(r *http.Request) (cursor uint64, limit int, err error) {
	limit = defaultPageLimit

	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, errors.New("cursor must be a positive integer")
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}

	return cursor, limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
