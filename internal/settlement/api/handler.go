package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"tikiti/internal/gateway"
	"tikiti/internal/logger"
	"tikiti/internal/settlement"
	"tikiti/internal/utils"

	"github.com/go-chi/chi/v5"
)

// gatewayAck is what the payment gateway expects back. Anything other
// than ResultCode 0 makes it retry the callback later.
type gatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type Handler struct {
	Service *settlement.Service
	Logger  *logger.Logger
}

func NewHandler(service *settlement.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// PaymentCallback ingests the gateway's settlement notification. Every
// outcome acks except an unknown reference: that is the only case where
// a gateway retry can help, because the purchase commit may still be in
// flight.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Unreadable payload"})
		return
	}

	var payload gateway.CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.Logger.Warn("SETTLEMENT", fmt.Sprintf("Malformed callback payload: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Malformed payload"})
		return
	}

	cb := payload.Body.StkCallback
	err = h.Service.Ingest(r.Context(), cb.AccountReference, cb.ResultCode, cb.CallbackMetadata.Item, raw)
	switch {
	case err == nil, errors.Is(err, settlement.ErrDuplicateCallback):
		utils.WriteJSON(w, http.StatusOK, gatewayAck{ResultCode: 0, ResultDesc: "Accepted"})
	case errors.Is(err, settlement.ErrUnknownReference):
		h.Logger.Warn("SETTLEMENT", fmt.Sprintf("Callback for unknown reference %s, asking gateway to retry", cb.AccountReference))
		utils.WriteJSON(w, http.StatusNotFound, gatewayAck{ResultCode: 1, ResultDesc: "Unknown reference"})
	default:
		// Side effects partially applied; ack anyway so the gateway does
		// not hammer us. The alert log and reconcile flag carry it from
		// here.
		h.Logger.Alert("SETTLEMENT", fmt.Sprintf("Ingest error for reference %s: %v", cb.AccountReference, err))
		utils.WriteJSON(w, http.StatusOK, gatewayAck{ResultCode: 0, ResultDesc: "Accepted"})
	}
}

// PaymentStatus lets a buyer's client poll the settlement outcome for a
// reference while the STK prompt is pending on their phone.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	txn, err := h.Service.DB.GetTransactionByReference(r.Context(), reference)
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Unknown reference", "no payment found for reference"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status", map[string]interface{}{
		"reference": txn.Reference,
		"status":    txn.Status,
		"receipt":   txn.Receipt,
		"amount":    txn.Amount,
	}))
}
