package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"perfmetrics/internal/domain"
	"perfmetrics/pkg/perfmetrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, perfmetrics.HealthResponse{Status: "ok"})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	withBars, _ := strconv.ParseBool(r.URL.Query().Get("bars"))

	entry, err := s.svc.GetMetrics(r.Context(), symbol)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ToMetrics(entry, withBars))
	case errors.Is(err, domain.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, perfmetrics.ErrorResponse{Error: "invalid symbol", Symbol: symbol})
	case errors.Is(err, domain.ErrNoHistoricalData):
		s.log.Info("metrics unavailable", "symbol", symbol, "err", err)
		writeError(w, http.StatusNotFound, perfmetrics.ErrorResponse{Error: "metrics unavailable", Symbol: symbol})
	default:
		s.log.Error("computing metrics failed", "symbol", symbol, "err", err)
		writeError(w, http.StatusBadGateway, perfmetrics.ErrorResponse{Error: err.Error(), Symbol: symbol})
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req perfmetrics.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, perfmetrics.ErrorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Symbols) > maxRefreshSymbols {
		writeError(w, http.StatusBadRequest, perfmetrics.ErrorResponse{
			Error: "too many symbols, max " + strconv.Itoa(maxRefreshSymbols),
		})
		return
	}

	res := s.svc.RefreshAll(r.Context(), req.Symbols)
	writeJSON(w, http.StatusOK, ToRefreshResponse(res))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body perfmetrics.ErrorResponse) {
	writeJSON(w, status, body)
}
