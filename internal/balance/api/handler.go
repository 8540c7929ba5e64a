package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tikiti/internal/balance"
	"tikiti/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *balance.Service
}

func NewHandler(service *balance.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "hostID")
	bal, err := h.Service.GetBalance(r.Context(), hostID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch balance", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Balance retrieved", bal))
}

type withdrawalRequest struct {
	HostID  string `json:"host_id"`
	Amount  int64  `json:"amount"`
	EventID string `json:"event_id,omitempty"`
	Phone   string `json:"phone"`
}

// RequestWithdrawal opens a withdrawal and debits the amount up front.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.HostID == "" || req.Amount <= 0 || req.Phone == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing required fields", "host_id, phone and a positive amount are required"))
		return
	}

	withdrawal, err := h.Service.RequestWithdrawal(r.Context(), req.HostID, req.Amount, req.EventID, req.Phone)
	if err != nil {
		var hold *balance.HoldError
		switch {
		case errors.Is(err, balance.ErrInsufficientFunds):
			utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Insufficient balance", err.Error()))
		case errors.Is(err, balance.ErrEventNotFound):
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Event not found", err.Error()))
		case errors.Is(err, balance.ErrNotEventHost):
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Not the event host", err.Error()))
		case errors.As(err, &hold):
			resp := utils.ErrorResponse("Funds still on hold", err.Error())
			resp.Data = map[string]interface{}{"available_at": hold.AvailableAt}
			utils.WriteJSON(w, http.StatusConflict, resp)
		default:
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Withdrawal request failed", err.Error()))
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Withdrawal requested", withdrawal))
}

type processRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty"`
}

// ProcessWithdrawal records the admin decision. Concurrent decisions on
// the same withdrawal race safely; losers get a conflict.
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	withdrawal, err := h.Service.ProcessWithdrawal(r.Context(), chi.URLParam(r, "id"), req.Approve, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, balance.ErrWithdrawalNotFound):
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Withdrawal not found", err.Error()))
		case errors.Is(err, balance.ErrAlreadyProcessed):
			utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Withdrawal already processed", err.Error()))
		default:
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to process withdrawal", err.Error()))
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Withdrawal processed", withdrawal))
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	hostID := r.URL.Query().Get("host_id")
	if hostID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing host_id", "host_id query parameter is required"))
		return
	}

	withdrawals, err := h.Service.ListWithdrawals(r.Context(), hostID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list withdrawals", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Withdrawals retrieved", withdrawals))
}
