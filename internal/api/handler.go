// Package api serves the signal feed, wallet curation and operational
// endpoints over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solana-signal-engine/internal/credibility"
	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/observability"
	"solana-signal-engine/internal/service"
	"solana-signal-engine/internal/storage"
	"solana-signal-engine/internal/walletdiscovery"
)

// Handler routes API requests to the service.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewHandler creates a Handler with all routes registered.
func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, logger: logger.Named("api"), mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /status", h.handleStatus)
	h.mux.Handle("GET /metrics", observability.Handler())

	h.mux.HandleFunc("GET /api/signals", h.handleListSignals)
	h.mux.HandleFunc("GET /api/assets/{address}/decisions", h.handleListDecisions)

	h.mux.HandleFunc("GET /api/wallets", h.handleListWallets)
	h.mux.HandleFunc("POST /api/wallets", h.handleUpsertWallet)
	h.mux.HandleFunc("DELETE /api/wallets/{address}", h.handleDeleteWallet)
	h.mux.HandleFunc("PATCH /api/wallets/{address}", h.handleSetWalletStatus)

	h.mux.HandleFunc("POST /api/discovery/run", h.handleRunDiscovery)
	h.mux.HandleFunc("GET /api/discovery/status", h.handleDiscoveryStatus)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleHealth answers 200 while the store is healthy and 503 once degraded.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := h.svc.Health()
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(report.Status))
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

func (h *Handler) handleListSignals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	views, err := h.svc.ListLatestSignals(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list signals", err)
		return
	}
	out := make([]SignalResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newSignalResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListDecisions(r.Context(), r.PathValue("address"))
	if errors.Is(err, service.ErrDecisionsDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "list decisions", err)
		return
	}
	out := make([]DecisionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newDecisionResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListWallets(w http.ResponseWriter, _ *http.Request) {
	wallets := h.svc.ListCredibleWallets()
	out := make([]WalletResponse, 0, len(wallets))
	for _, cw := range wallets {
		out = append(out, newWalletResponse(cw))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpsertWallet(w http.ResponseWriter, r *http.Request) {
	var req UpsertWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cw, err := h.svc.UpsertCredibleWallet(r.Context(), req.Address, req.Label)
	if errors.Is(err, credibility.ErrInvalidAddress) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "upsert wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletResponse(cw))
}

func (h *Handler) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteCredibleWallet(r.Context(), r.PathValue("address"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	if err != nil {
		h.internalError(w, "delete wallet", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetWalletStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cw, err := h.svc.SetWalletStatus(r.Context(), r.PathValue("address"), domain.WalletStatus(req.Status))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "wallet not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.internalError(w, "set wallet status", err)
	default:
		writeJSON(w, http.StatusOK, newWalletResponse(cw))
	}
}

func (h *Handler) handleRunDiscovery(w http.ResponseWriter, _ *http.Request) {
	err := h.svc.RunDiscovery()
	switch {
	case errors.Is(err, service.ErrDiscoveryDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, walletdiscovery.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.internalError(w, "run discovery", err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func (h *Handler) handleDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.DiscoveryStatus(r.Context())
	if errors.Is(err, service.ErrDiscoveryDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "discovery status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
