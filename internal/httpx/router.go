package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/amazon-brain/internal/alerts"
	"github.com/AngelCh415/amazon-brain/internal/datasets"
	"github.com/AngelCh415/amazon-brain/internal/ingest"
	"github.com/AngelCh415/amazon-brain/internal/metrics"
	"github.com/AngelCh415/amazon-brain/internal/utils"
)

type SyncFunc func(ctx context.Context, ds []ingest.Dataset, days int) (ingest.Summary, error)

type Cron interface {
	Run(ctx context.Context) (alerts.Result, error)
}

// Keys are the shared secrets per route group. Empty disables the check.
type Keys struct {
	Sheets string
	Sync   string
	Cron   string
}

type Deps struct {
	Log    *slog.Logger
	Ready  func(ctx context.Context) error
	Sheets *datasets.Service
	Sync   SyncFunc
	Cron   Cron
	Keys   Keys
}

type router struct {
	Deps
	syncMu sync.Mutex
}

func NewRouter(d Deps) http.Handler {
	rt := &router{Deps: d}
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", rt.readyz)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Get("/api/sheets", rt.sheetsIndex)
	mux.With(utils.BearerAuth(d.Keys.Sheets)).Get("/api/sheets/{dataset}", rt.sheet)
	mux.With(utils.BearerAuth(d.Keys.Sync)).Post("/ingest/run", rt.ingest)
	mux.With(utils.BearerAuth(d.Keys.Cron)).Get("/api/cron", rt.cron)

	return mux
}

func (rt *router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.Ready != nil {
		if err := rt.Ready(r.Context()); err != nil {
			utils.WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

type datasetLink struct {
	datasets.Info
	URL    string            `json:"url"`
	Params map[string]string `json:"params,omitempty"`
}

func (rt *router) sheetsIndex(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	base := scheme + "://" + r.Host + "/api/sheets/"
	var links []datasetLink
	for _, info := range datasets.Index() {
		l := datasetLink{Info: info, URL: base + info.Name}
		if info.Weekly {
			l.Params = map[string]string{"weeks": "number (default: 12)", "format": "json | xlsx"}
		}
		links = append(links, l)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "Amazon Brain Sheets API",
		"version":        "1.0.0",
		"authentication": "Bearer token in Authorization header (SHEETS_API_KEY)",
		"datasets":       links,
	})
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *router) sheet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	label := name
	if !datasets.Known(name) {
		label = "unknown"
	}
	code := http.StatusOK
	defer func() { metrics.SheetsRequests.WithLabelValues(label, strconv.Itoa(code)).Inc() }()

	q, err := datasets.ParseQuery(r.URL.Query())
	if err != nil {
		code = http.StatusBadRequest
		utils.WriteError(w, code, "bad_request", err.Error())
		return
	}
	resp, err := rt.Sheets.Get(r.Context(), name, q)
	switch {
	case errors.Is(err, datasets.ErrUnknownDataset):
		code = http.StatusBadRequest
		utils.WriteError(w, code, "unknown_dataset", "Unknown dataset: "+name)
		return
	case err != nil:
		code = http.StatusInternalServerError
		rt.Log.Error("dataset failed", slog.String("dataset", name), slog.Any("err", err), slog.String("rid", utils.RID(r.Context())))
		utils.WriteError(w, code, "internal", err.Error())
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		var buf bytes.Buffer
		if err := datasets.WriteXLSX(&buf, resp); err != nil {
			code = http.StatusInternalServerError
			utils.WriteError(w, code, "internal", err.Error())
			return
		}
		w.Header().Set("Content-Type", xlsxType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.xlsx"`)
		w.Write(buf.Bytes())
		return
	}
	writeJSON(w, code, resp)
}

type runResponse struct {
	RunID    string           `json:"run_id"`
	Datasets []ingest.Dataset `json:"datasets"`
	Days     int              `json:"days,omitempty"`
	Summary  *ingest.Summary  `json:"summary,omitempty"`
}

// ingest starts a sync. By default it runs in the background and answers
// 202; wait=true blocks and returns the summary. One run at a time.
func (rt *router) ingest(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	ds, err := ingest.ParseDatasets(v.Get("datasets"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	days, _ := strconv.Atoi(v.Get("days"))
	if days < 0 {
		utils.WriteError(w, http.StatusBadRequest, "bad_request", "days must be positive")
		return
	}
	if !rt.syncMu.TryLock() {
		utils.WriteError(w, http.StatusConflict, "sync_running", "a sync is already running")
		return
	}
	out := runResponse{RunID: uuid.NewString(), Datasets: ds, Days: days}
	log := rt.Log.With(slog.String("run_id", out.RunID))

	if wait, _ := strconv.ParseBool(v.Get("wait")); wait {
		defer rt.syncMu.Unlock()
		sum, err := rt.Sync(r.Context(), ds, days)
		if err != nil {
			rt.syncError(w, err)
			return
		}
		out.Summary = &sum
		writeJSON(w, http.StatusOK, out)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer rt.syncMu.Unlock()
		if _, err := rt.Sync(ctx, ds, days); err != nil {
			log.Error("background sync failed", slog.Any("err", err))
		}
	}()
	writeJSON(w, http.StatusAccepted, out)
}

func (rt *router) syncError(w http.ResponseWriter, err error) {
	if errors.Is(err, ingest.ErrMissingSource) {
		utils.WriteError(w, http.StatusPreconditionFailed, "missing_credentials", err.Error())
		return
	}
	utils.WriteError(w, http.StatusInternalServerError, "internal", err.Error())
}

func (rt *router) cron(w http.ResponseWriter, r *http.Request) {
	res, err := rt.Cron.Run(r.Context())
	if err != nil {
		rt.Log.Error("cron failed", slog.Any("err", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"result":    res,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
