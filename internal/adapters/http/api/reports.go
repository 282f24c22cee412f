package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	service "github.com/okian/surfwatch/internal/app"
	"github.com/okian/surfwatch/pkg/logger"
)

// Multipart form names.
const (
	formMedia        = "media"
	formSpotID       = "surfSpotId"
	formHazardType   = "hazardType"
	formDescription  = "description"
	formSeverity     = "severity"
	formReporterName = "reporterName"

	// multipartMemory is kept in memory; larger parts spill to temp files.
	multipartMemory = 8 << 20
	bodySlack       = 1 << 20

	// responseSlack is added to the upload deadline for storing the report
	// and writing the receipt.
	responseSlack = 30 * time.Second
)

// ReportsHandler serves hazard report submission and reads.
type ReportsHandler struct {
	deps          Dependencies
	logger        logger.Logger
	uploadTimeout time.Duration
}

// NewReportsHandler creates a new reports handler. A positive uploadTimeout
// replaces the server's connection deadlines for submissions.
func NewReportsHandler(deps Dependencies, log logger.Logger, uploadTimeout time.Duration) *ReportsHandler {
	return &ReportsHandler{deps: deps, logger: log, uploadTimeout: uploadTimeout}
}

// HandleSubmit handles POST /hazard-reports. Temp files spilled by the
// multipart parser are removed once the request completes, accepted or not.
func (h *ReportsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "hazard-reports.submit"
	ctx := r.Context()

	h.extendDeadlines(w, r)

	limits := h.deps.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileSize+bodySlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		kind := ErrBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			kind = ErrTooLarge
		}
		writeError(ctx, h.logger, w, WrapKind(op, kind, err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn(ctx, "failed to remove multipart temp files", logger.Error(err))
		}
	}()

	files, closeAll, err := openParts(r.MultipartForm.File[formMedia])
	defer closeAll()
	if err != nil {
		writeError(ctx, h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	report, err := h.deps.SubmitReport(ctx, service.Submission{
		SpotID:       r.FormValue(formSpotID),
		HazardType:   r.FormValue(formHazardType),
		Description:  r.FormValue(formDescription),
		Severity:     r.FormValue(formSeverity),
		ReporterName: r.FormValue(formReporterName),
		Media:        files,
	})
	if err != nil {
		writeError(ctx, h.logger, w, Wrap(op, err))
		return
	}
	writeData(w, http.StatusCreated, service.NewReceipt(&report))
}

// extendDeadlines gives the body the upload window and the response the same
// window plus responseSlack, so a slow upload that is accepted still gets
// its receipt.
func (h *ReportsHandler) extendDeadlines(w http.ResponseWriter, r *http.Request) {
	if h.uploadTimeout <= 0 {
		return
	}
	rc := http.NewResponseController(w)
	readBy := time.Now().Add(h.uploadTimeout)
	if err := rc.SetReadDeadline(readBy); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn(r.Context(), "failed to extend read deadline", logger.Error(err))
	}
	if err := rc.SetWriteDeadline(readBy.Add(responseSlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn(r.Context(), "failed to extend write deadline", logger.Error(err))
	}
}

// openParts opens every uploaded part. The returned closer is always safe
// to call.
func openParts(headers []*multipart.FileHeader) ([]service.File, func(), error) {
	files := make([]service.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, service.File{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
			Body:     f,
		})
	}
	return files, closeAll, nil
}

// HandleRecent handles GET /hazard-reports/spot/{spotId}.
func (h *ReportsHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	reports, err := h.deps.RecentReports(r.Context(), r.PathValue("spotId"))
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("hazard-reports.recent", err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(reports), Data: reports})
}

// HandleGet handles GET /hazard-reports/{id}.
func (h *ReportsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("hazard-reports.get", err))
		return
	}
	writeData(w, http.StatusOK, report)
}

type statusRequest struct {
	Status string `json:"status"`
}

// HandleStatus handles PUT /hazard-reports/{id}/status.
func (h *ReportsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "hazard-reports.status"

	var in statusRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	report, err := h.deps.SetReportStatus(r.Context(), r.PathValue("id"), in.Status)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeData(w, http.StatusOK, report)
}
