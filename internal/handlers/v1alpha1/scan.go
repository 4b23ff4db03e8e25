package v1alpha1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/service"
	"github.com/sitescan/sitescan/pkg/log"
)

type scanReply struct {
	Scan api.Scan     `json:"scan"`
	Job  *api.JobInfo `json:"job,omitempty"`
}

func (h *ServiceHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("scan_handler").WithContext(r.Context()).Operation("create_scan").Build()

	user := auth.MustHaveUser(r.Context())

	var body api.ScanCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		replyError(w, r, http.StatusBadRequest, "sitemapUrl must be a valid URL")
		return
	}

	scanRecord, jobInfo, err := h.scanSrv.CreateScan(r.Context(), user, body.SitemapUrl)
	if err != nil {
		logger.Error(err).Log()
		switch e := err.(type) {
		case *service.ErrInvalidSitemapURL:
			replyError(w, r, http.StatusBadRequest, e.Error())
		case *service.ErrInsufficientCredits:
			replyError(w, r, http.StatusPaymentRequired, e.Error())
		default:
			replyError(w, r, http.StatusInternalServerError, "failed to create scan: "+err.Error())
		}
		return
	}

	logger.Success().WithUUID("scan_id", scanRecord.ID).Log()
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, scanReply{Scan: scanRecord.ToApiResource(), Job: jobInfo})
}

func (h *ServiceHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scans, err := h.scanSrv.ListScans(r.Context(), user)
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, "failed to list scans: "+err.Error())
		return
	}

	render.JSON(w, r, scans.ToApiResource())
}

func (h *ServiceHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scanID, ok := h.scanIDFromRequest(w, r)
	if !ok {
		return
	}

	scanRecord, err := h.scanSrv.GetScan(r.Context(), scanID, user)
	if err != nil {
		h.replyScanError(w, r, err)
		return
	}

	render.JSON(w, r, scanRecord.ToApiResource())
}

func (h *ServiceHandler) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scanID, ok := h.scanIDFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.scanSrv.GetScanStatus(r.Context(), scanID, user)
	if err != nil {
		h.replyScanError(w, r, err)
		return
	}

	render.JSON(w, r, status)
}

func (h *ServiceHandler) GetScanResults(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scanID, ok := h.scanIDFromRequest(w, r)
	if !ok {
		return
	}

	results, err := h.scanSrv.GetScanResults(r.Context(), scanID, user)
	if err != nil {
		h.replyScanError(w, r, err)
		return
	}

	render.JSON(w, r, results.ToApiResource())
}

func (h *ServiceHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scanID, ok := h.scanIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.scanSrv.CancelScan(r.Context(), scanID, user); err != nil {
		h.replyScanError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

func (h *ServiceHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	scanID, ok := h.scanIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.scanSrv.DeleteScan(r.Context(), scanID, user); err != nil {
		h.replyScanError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

func (h *ServiceHandler) scanIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	scanID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid scan id")
		return uuid.UUID{}, false
	}
	return scanID, true
}

func (h *ServiceHandler) replyScanError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *service.ErrResourceNotFound:
		replyError(w, r, http.StatusNotFound, e.Error())
	case *service.ErrScanAlreadyFinished, *service.ErrScanInProgress:
		replyError(w, r, http.StatusConflict, err.Error())
	default:
		replyError(w, r, http.StatusInternalServerError, err.Error())
	}
}
