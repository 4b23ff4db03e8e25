package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/service"
	"github.com/sitescan/sitescan/pkg/requestid"
)

type ServiceHandler struct {
	scanSrv   *service.ScanService
	creditSrv *service.CreditService
	jobSrv    *service.JobService
	validate  *validator.Validate
}

func NewServiceHandler(scanSrv *service.ScanService, creditSrv *service.CreditService, jobSrv *service.JobService) *ServiceHandler {
	return &ServiceHandler{
		scanSrv:   scanSrv,
		creditSrv: creditSrv,
		jobSrv:    jobSrv,
		validate:  validator.New(),
	}
}

func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans", h.CreateScan)
		r.Get("/scans", h.ListScans)
		r.Get("/scans/{id}", h.GetScan)
		r.Get("/scans/{id}/status", h.GetScanStatus)
		r.Get("/scans/{id}/results", h.GetScanResults)
		r.Post("/scans/{id}/cancel", h.CancelScan)
		r.Delete("/scans/{id}", h.DeleteScan)

		r.Get("/credits", h.GetBalance)
		r.Post("/credits/add", h.AddCredits)

		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/queue/stats", h.GetQueueStats)
	})
}

func replyError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
