package v1alpha1

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/service"
)

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	jobID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	jobInfo, err := h.jobSrv.GetJob(r.Context(), jobID, user)
	if err != nil {
		switch e := err.(type) {
		case *service.ErrJobNotFound:
			replyError(w, r, http.StatusNotFound, e.Error())
		case *service.ErrJobAccessForbidden:
			replyError(w, r, http.StatusForbidden, e.Error())
		default:
			replyError(w, r, http.StatusInternalServerError, "failed to get job: "+err.Error())
		}
		return
	}

	render.JSON(w, r, jobInfo)
}

func (h *ServiceHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobSrv.QueueStats(r.Context())
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, "failed to get queue stats: "+err.Error())
		return
	}

	render.JSON(w, r, stats)
}
