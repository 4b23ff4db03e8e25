package v1alpha1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"

	api "github.com/sitescan/sitescan/api/v1alpha1"
	"github.com/sitescan/sitescan/internal/auth"
	"github.com/sitescan/sitescan/internal/service"
)

func (h *ServiceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	balance, err := h.creditSrv.GetBalance(r.Context(), user.ID)
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, "failed to get balance: "+err.Error())
		return
	}

	render.JSON(w, r, api.CreditBalance{Balance: balance})
}

func (h *ServiceHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	user := auth.MustHaveUser(r.Context())

	var body api.CreditAdd
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(body); err != nil {
		replyError(w, r, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	balance, err := h.creditSrv.Add(r.Context(), user.ID, body.Amount, body.Reason)
	if err != nil {
		switch e := err.(type) {
		case *service.ErrInvalidCreditAmount:
			replyError(w, r, http.StatusBadRequest, e.Error())
		default:
			replyError(w, r, http.StatusInternalServerError, "failed to add credits: "+err.Error())
		}
		return
	}

	render.JSON(w, r, api.CreditBalance{Balance: balance})
}
