package recordhandler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/packing_dashboard/internal/domain/errs"
	"github.com/zanzhit/packing_dashboard/internal/domain/models"
	"github.com/zanzhit/packing_dashboard/internal/http-server/handlers"
	"github.com/zanzhit/packing_dashboard/internal/lib/api/response"
	"github.com/zanzhit/packing_dashboard/internal/lib/sl"
	recordstorage "github.com/zanzhit/packing_dashboard/internal/storage/postgres/records"
)

type RecordHandler struct {
	log     *slog.Logger
	records RecordService
}

type RecordService interface {
	Record(recordID string) (models.PackingRecord, error)
	List(f recordstorage.ListFilter) ([]models.PackingRecord, int, error)
	TodayStats() (models.TodayStats, error)
	ExportCSV(w io.Writer, f recordstorage.ListFilter) error
}

func New(log *slog.Logger, records RecordService) *RecordHandler {
	return &RecordHandler{
		log:     log,
		records: records,
	}
}

type ListResponse struct {
	Records []models.PackingRecord `json:"records"`
	Total   int                    `json:"total"`
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.records.List"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	recs, total, err := h.records.List(filterFromQuery(r))
	if err != nil {
		log.Error("failed to list records", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to list records", middleware.GetReqID(r.Context())))

		return
	}

	if recs == nil {
		recs = []models.PackingRecord{}
	}

	render.JSON(w, r, ListResponse{Records: recs, Total: total})
}

func (h *RecordHandler) Record(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.records.Record"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	rec, err := h.records.Record(chi.URLParam(r, "recordID"))
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			handlers.Error(w, r, http.StatusNotFound, response.Error(errs.ErrRecordNotFound.Error(), middleware.GetReqID(r.Context())))

			return
		}

		log.Error("failed to get record", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get record", middleware.GetReqID(r.Context())))

		return
	}

	render.JSON(w, r, rec)
}

func (h *RecordHandler) TodayStats(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.records.TodayStats"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stats, err := h.records.TodayStats()
	if err != nil {
		log.Error("failed to get today stats", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to get stats", middleware.GetReqID(r.Context())))

		return
	}

	render.JSON(w, r, stats)
}

func (h *RecordHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.records.ExportCSV"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="packing_records_%s.csv"`, time.Now().Format("2006-01-02")))

	if err := h.records.ExportCSV(w, filterFromQuery(r)); err != nil {
		// headers are already sent, nothing to do but log
		log.Error("csv export failed", sl.Err(err))
	}
}

func filterFromQuery(r *http.Request) recordstorage.ListFilter {
	q := r.URL.Query()

	f := recordstorage.ListFilter{
		Employee:       q.Get("employee"),
		Platform:       q.Get("platform"),
		Status:         q.Get("status"),
		TrackingNumber: q.Get("tracking_number"),
	}

	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = v
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		f.To = t.AddDate(0, 0, 1)
	}

	return f
}
