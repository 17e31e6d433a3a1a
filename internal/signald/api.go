package signald

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"candlesignal/internal/model"

	json "github.com/goccy/go-json"
)

const maxHistoryLimit = 1000

// recentReader is implemented by recorders that can list past snapshots.
type recentReader interface {
	ReadRecent(ctx context.Context, symbol string, limit int) ([]*model.MarketSnapshot, error)
}

// Handler returns the HTTP API:
//
//	GET  /snapshot       latest snapshot
//	POST /snapshot/run   run a cycle now and return its snapshot
//	GET  /history?limit  recent snapshots, newest first
//	GET  /params         current analysis parameters
//	PUT  /params         replace analysis parameters
//	GET  /healthz        service health
//	GET  /ws             WebSocket stream of new snapshots
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshot", svc.handleSnapshot)
	mux.HandleFunc("POST /snapshot/run", svc.handleRun)
	mux.HandleFunc("GET /history", svc.handleHistory)
	mux.HandleFunc("GET /params", svc.handleGetParams)
	mux.HandleFunc("PUT /params", svc.handlePutParams)
	mux.Handle("GET /healthz", svc.health)
	mux.Handle("GET /ws", svc.live)
	return mux
}

func (svc *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := svc.history.Latest(svc.cfg.Symbol)
	if snap == nil && svc.deps.Recorder != nil {
		var err error
		snap, err = svc.deps.Recorder.ReadLatestSnapshot(r.Context(), svc.cfg.Symbol)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, errors.New("no snapshot yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (svc *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	snap, err := svc.RunCycle(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (svc *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, errors.New("limit must be 1.."+strconv.Itoa(maxHistoryLimit)))
			return
		}
		limit = n
	}

	snaps := svc.history.Recent(svc.cfg.Symbol, limit)
	if len(snaps) < limit {
		if rr, ok := svc.deps.Recorder.(recentReader); ok {
			stored, err := rr.ReadRecent(r.Context(), svc.cfg.Symbol, limit)
			if err != nil {
				slog.Warn("history read failed", "error", err)
			} else if len(stored) > len(snaps) {
				snaps = stored
			}
		}
	}
	if snaps == nil {
		snaps = []*model.MarketSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (svc *Service) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svc.Params())
}

func (svc *Service) handlePutParams(w http.ResponseWriter, r *http.Request) {
	p := svc.Params()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON: "+err.Error()))
		return
	}
	if err := svc.SetParams(p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
