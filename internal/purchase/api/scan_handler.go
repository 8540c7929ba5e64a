package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tikiti/internal/auth"
	"tikiti/internal/purchase"
	"tikiti/internal/token"
	"tikiti/internal/utils"
)

// ScanHandler serves the gate: volunteers authenticate with a per-event
// access code, then validate or redeem admission tokens scoped to that
// event.
type ScanHandler struct {
	Service *purchase.Service
	Scanner *auth.Scanner
}

func NewScanHandler(service *purchase.Service, scanner *auth.Scanner) *ScanHandler {
	return &ScanHandler{Service: service, Scanner: scanner}
}

// Authenticate exchanges an access code for a scanner session token.
func (h *ScanHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "code is required"))
		return
	}

	signed, err := h.Scanner.Authenticate(r.Context(), req.Code)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Scanner authenticated", map[string]string{"token": signed}))
}

type scanRequest struct {
	AdmissionToken string `json:"admission_token"`
}

// Validate runs the gate checks without consuming the ticket. Used for
// a pre-check lane or a disputed scan.
func (h *ScanHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScan(w, r)
	if !ok {
		return
	}

	ticket, err := h.Service.Validate(r.Context(), req.AdmissionToken, auth.EventIDFromContext(r.Context()))
	if err != nil {
		writeScanError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket is valid for entry", ticket))
}

// Redeem consumes the ticket: at most one scan succeeds per ticket.
func (h *ScanHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeScan(w, r)
	if !ok {
		return
	}

	receipt, err := h.Service.RedeemToken(r.Context(), req.AdmissionToken, auth.EventIDFromContext(r.Context()))
	if err != nil {
		writeScanError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Admission granted", receipt))
}

func decodeScan(w http.ResponseWriter, r *http.Request) (scanRequest, bool) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdmissionToken == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "admission_token is required"))
		return req, false
	}
	return req, true
}

// writeScanError maps each gate outcome to a status the scanner app
// shows the volunteer. The specific reason matters at the gate.
func writeScanError(w http.ResponseWriter, err error) {
	var alreadyRedeemed *purchase.AlreadyRedeemedError
	var notYetActive *purchase.NotYetActiveError

	switch {
	case errors.Is(err, token.ErrInvalidToken):
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Invalid admission token", err.Error()))
	case errors.Is(err, purchase.ErrTicketNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", err.Error()))
	case errors.Is(err, purchase.ErrWrongEvent):
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Wrong event", err.Error()))
	case errors.As(err, &alreadyRedeemed):
		resp := utils.ErrorResponse("Ticket already used", err.Error())
		resp.Data = map[string]interface{}{"redeemed_at": alreadyRedeemed.RedeemedAt}
		utils.WriteJSON(w, http.StatusConflict, resp)
	case errors.Is(err, purchase.ErrPaymentIncomplete):
		utils.WriteJSON(w, http.StatusPaymentRequired, utils.ErrorResponse("Payment incomplete", err.Error()))
	case errors.As(err, &notYetActive):
		resp := utils.ErrorResponse("Ticket not active yet", err.Error())
		resp.Data = map[string]interface{}{"active_from": notYetActive.ActiveFrom}
		utils.WriteJSON(w, http.StatusConflict, resp)
	case errors.Is(err, purchase.ErrEventEnded):
		utils.WriteJSON(w, http.StatusGone, utils.ErrorResponse("Event has ended", err.Error()))
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Scan failed", err.Error()))
	}
}
