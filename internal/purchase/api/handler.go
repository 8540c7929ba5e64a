package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tikiti/internal/gateway"
	"tikiti/internal/inventory"
	"tikiti/internal/logger"
	"tikiti/internal/models"
	"tikiti/internal/purchase"
	"tikiti/internal/qr"
	"tikiti/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *purchase.Service
	Gateway gateway.PaymentGateway
	Logger  *logger.Logger
}

func NewHandler(service *purchase.Service, gw gateway.PaymentGateway, log *logger.Logger) *Handler {
	return &Handler{Service: service, Gateway: gw, Logger: log}
}

// CreateTicket creates a pending purchase and fires the STK push. The
// buyer approves on their phone; settlement lands on the callback route.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req purchase.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.EventID == "" || req.TierID == "" || req.BuyerPhone == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing required fields", "event_id, tier_id and buyer_phone are required"))
		return
	}

	ticket, err := h.Service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, purchase.ErrEventNotFound), errors.Is(err, inventory.ErrTierNotFound):
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
		case errors.Is(err, inventory.ErrOutOfStock):
			utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Tier sold out", err.Error()))
		default:
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to create ticket", err.Error()))
		}
		return
	}

	checkout, err := h.Gateway.Initiate(r.Context(), ticket.BuyerPhone, ticket.TotalAmount, ticket.Reference, "Ticket purchase")
	if err != nil {
		// The pending records stay; the buyer can retry payment and the
		// callback will still correlate on the reference.
		h.Logger.Warn("PURCHASE", fmt.Sprintf("STK push failed for ticket %s: %v", ticket.ID, err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("Payment initiation failed", err.Error()))
		return
	}

	if err := h.Service.AttachCheckout(r.Context(), ticket.ID, checkout.CheckoutID); err != nil {
		h.Logger.Warn("PURCHASE", fmt.Sprintf("Failed to attach checkout id to ticket %s: %v", ticket.ID, err))
	}
	ticket.CheckoutID = checkout.CheckoutID

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket created, payment prompt sent", ticket))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Service.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket retrieved", ticket))
}

// GetTicketQR serves the admission QR as a PNG. Only paid tickets get
// a scannable code.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Service.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", err.Error()))
		return
	}
	if ticket.Status != models.StatusSuccess {
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Ticket not paid", "QR code is available after payment completes"))
		return
	}

	png, err := qr.Render(ticket.AdmissionToken)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to render QR code", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) ListTicketsByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing phone", "phone query parameter is required"))
		return
	}

	tickets, err := h.Service.GetTicketsByPhone(r.Context(), phone)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list tickets", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets retrieved", tickets))
}
