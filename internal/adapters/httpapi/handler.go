package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/aggregate"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/query"
	"github.com/atvirokodosprendimai/shopfloor/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	actorHeader     = "X-Actor"
	maxJSONBodySize = 1 << 20

	defaultLogLimit = 100
	maxLogLimit     = 1000
)

type Handler struct {
	records *usecase.RecordService
	audit   *usecase.AuditService
	reports *usecase.ReportService
	log     logrus.FieldLogger
}

func NewHandler(records *usecase.RecordService, audit *usecase.AuditService, reports *usecase.ReportService, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{records: records, audit: audit, reports: reports, log: log}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/records", h.createRecord)
		v1.Post("/records:batch", h.createBatch)
		v1.Get("/records", h.listRecords)
		v1.Get("/records/{id}", h.getRecord)
		v1.Put("/records/{id}", h.updateRecord)
		v1.Delete("/records/{id}", h.deleteRecord)

		v1.Get("/logs", h.listLogs)

		v1.Get("/reports", h.report)
		v1.Get("/reports/series", h.series)
	})

	return r
}

type batchRequest struct {
	Records []json.RawMessage `json:"records"`
}

type reportResponse struct {
	Field   string   `json:"field"`
	Metric  string   `json:"metric"`
	Value   kpiValue `json:"value"`
	Matched int      `json:"matched"`
}

type seriesPointResponse struct {
	Period  string   `json:"period"`
	Value   kpiValue `json:"value"`
	Matched int      `json:"matched"`
}

// kpiValue renders infinities as the strings "Infinity" and "-Infinity"
// and NaN as null, which encoding/json refuses to encode.
type kpiValue float64

func (v kpiValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	default:
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	}
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecordBody(w, r)
	if !ok {
		return
	}

	created, err := h.records.Create(r.Context(), rec, mutationMeta(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req batchRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rows := make([]domain.Record, 0, len(req.Records))
	for i, raw := range req.Records {
		rec, err := domain.ParseRecord(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "records["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		rows = append(rows, rec)
	}

	created, err := h.records.CreateBatch(r.Context(), rows, mutationMeta(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"items": created})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, ok := parseDateFilter(w, r)
	if !ok {
		return
	}
	sortParam := q.Get("sort")
	if sortParam != "" && sortParam != "date" {
		writeError(w, http.StatusBadRequest, "sort must be date")
		return
	}

	records, err := h.reports.Select(r.Context(), query.TypeSelector{
		EntryType:   q.Get("entry_type"),
		LegacyField: q.Get("legacy_field"),
	}, filter, sortParam == "date")
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// updateRecord replaces the record named in the path. An unknown id is
// not an error; the response reports updated=false.
func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecordBody(w, r)
	if !ok {
		return
	}
	rec[domain.FieldID] = chi.URLParam(r, "id")

	_, err := h.records.Update(r.Context(), rec, mutationMeta(r))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]bool{"updated": false})
	case err != nil:
		h.handleDomainError(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
	}
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	_, err := h.records.Delete(r.Context(), chi.URLParam(r, "id"), mutationMeta(r))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": false})
	case err != nil:
		h.handleDomainError(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		Action:   strings.ToUpper(r.URL.Query().Get("action")),
		RecordID: r.URL.Query().Get("record_id"),
		Limit:    limit,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	req, ok := parseReportRequest(w, r)
	if !ok {
		return
	}

	rep, err := h.reports.Report(r.Context(), req)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	metric, _ := aggregate.ParseMetric(string(req.Metric))
	writeJSON(w, http.StatusOK, reportResponse{
		Field:   req.Field,
		Metric:  string(metric),
		Value:   kpiValue(rep.Value),
		Matched: rep.Matched,
	})
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	req, ok := parseReportRequest(w, r)
	if !ok {
		return
	}

	points, err := h.reports.Series(r.Context(), usecase.SeriesRequest{
		ReportRequest: req,
		Period:        query.Period(r.URL.Query().Get("period")),
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	result := make([]seriesPointResponse, 0, len(points))
	for _, p := range points {
		result = append(result, seriesPointResponse{Period: p.Period, Value: kpiValue(p.Value), Matched: p.Matched})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}

func decodeRecordBody(w http.ResponseWriter, r *http.Request) (domain.Record, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	rec, err := domain.ParseRecord(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return rec, true
}

func mutationMeta(r *http.Request) domain.MutationMetadata {
	return domain.MutationMetadata{
		Actor:     strings.TrimSpace(r.Header.Get(actorHeader)),
		Source:    "api",
		RequestID: middleware.GetReqID(r.Context()),
	}
}

func parseReportRequest(w http.ResponseWriter, r *http.Request) (usecase.ReportRequest, bool) {
	filter, ok := parseDateFilter(w, r)
	if !ok {
		return usecase.ReportRequest{}, false
	}
	q := r.URL.Query()
	return usecase.ReportRequest{
		EntryType:   q.Get("entry_type"),
		LegacyField: q.Get("legacy_field"),
		Filter:      filter,
		Field:       q.Get("field"),
		Metric:      aggregate.Metric(q.Get("metric")),
	}, true
}

// parseDateFilter reads year, month (1-12) and day from the query string.
func parseDateFilter(w http.ResponseWriter, r *http.Request) (domain.DateFilter, bool) {
	q := r.URL.Query()
	var f domain.DateFilter
	for _, p := range []struct {
		name string
		dst  **int
		min  int
		max  int
	}{
		{"year", &f.Year, 1, 9999},
		{"month", &f.Month, 1, 12},
		{"day", &f.Day, 1, 31},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < p.min || v > p.max {
			writeError(w, http.StatusBadRequest, p.name+" must be an integer between "+strconv.Itoa(p.min)+" and "+strconv.Itoa(p.max))
			return domain.DateFilter{}, false
		}
		*p.dst = &v
	}
	if f.Month != nil {
		m := *f.Month - 1
		f.Month = &m
	}
	return f, true
}

// parseLimit defaults to defaultLogLimit and clamps to maxLogLimit.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLogLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(limit, maxLogLimit), true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logrus.WithError(err).Error("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logrus.WithError(err).Warn("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsStorageError(err):
		h.log.WithError(err).Error("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.log.WithError(err).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "shopfloor",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/records": map[string]any{
				"get":  map[string]any{"summary": "List records"},
				"post": map[string]any{"summary": "Create record"},
			},
			"/v1/records:batch": map[string]any{
				"post": map[string]any{"summary": "Create records in one write"},
			},
			"/v1/records/{id}": map[string]any{
				"get":    map[string]any{"summary": "Get record"},
				"put":    map[string]any{"summary": "Replace record"},
				"delete": map[string]any{"summary": "Delete record"},
			},
			"/v1/logs": map[string]any{
				"get": map[string]any{"summary": "List audit log entries, newest first; limit defaults to 100, max 1000"},
			},
			"/v1/reports": map[string]any{
				"get": map[string]any{"summary": "Aggregate a field over selected records"},
			},
			"/v1/reports/series": map[string]any{
				"get": map[string]any{"summary": "Aggregate a field per period"},
			},
		},
	}
}
