package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"BTCPayGateway/internal/amount"
	"BTCPayGateway/internal/chain"
	"BTCPayGateway/internal/invoice"
	"BTCPayGateway/internal/services"
	"BTCPayGateway/internal/store"
)

const defaultQRSize = 256

type Handler struct {
	Invoices              *services.InvoiceService
	Payments              *services.PaymentService
	RequiredConfirmations int64
	QRSize                int
}

func NewHandler(invoices *services.InvoiceService, payments *services.PaymentService) *Handler {
	return &Handler{
		Invoices:              invoices,
		Payments:              payments,
		RequiredConfirmations: payments.RequiredConfirmations,
		QRSize:                defaultQRSize,
	}
}

type createInvoiceRequest struct {
	DueAmount string `json:"dueAmount"` // decimal BTC
	Message   string `json:"message"`
}

type invoiceResponse struct {
	ID                    string `json:"id"`
	Address               string `json:"address"`
	Message               string `json:"message"`
	DueAmount             int64  `json:"dueAmount"`
	DueBTC                string `json:"dueBtc"`
	PaidAmount            int64  `json:"paidAmount"`
	PaidBTC               string `json:"paidBtc"`
	AmountState           string `json:"amountState"`
	PaymentState          string `json:"paymentState"`
	Confirmations         int64  `json:"confirmations"`
	RequiredConfirmations int64  `json:"requiredConfirmations"`
	Complete              bool   `json:"complete"`
	CreatedAt             string `json:"createdAt"`
	UpdatedAt             string `json:"updatedAt"`
}

func (h *Handler) invoiceView(inv *invoice.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                    inv.ID,
		Address:               inv.Address,
		Message:               inv.Message,
		DueAmount:             inv.DueAmount,
		DueBTC:                amount.SatoshiToBitcoin(inv.DueAmount),
		PaidAmount:            inv.PaidAmount(),
		PaidBTC:               amount.SatoshiToBitcoin(inv.PaidAmount()),
		AmountState:           string(inv.AmountState()),
		PaymentState:          string(inv.PaymentState()),
		Confirmations:         inv.ConfirmationCount(),
		RequiredConfirmations: h.RequiredConfirmations,
		Complete:              inv.IsComplete(),
		CreatedAt:             inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             inv.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	sats, err := amount.BitcoinToSatoshi(req.DueAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid due amount")
		return
	}

	inv, err := h.Invoices.CreateInvoice(r.Context(), sats, req.Message)
	if err != nil {
		var remoteErr *chain.RemoteError
		switch {
		case errors.Is(err, services.ErrInvalidDueAmount):
			writeError(w, http.StatusBadRequest, "due amount must be positive")
		case errors.As(err, &remoteErr):
			writeError(w, http.StatusBadGateway, "receiving address generation failed")
		default:
			writeError(w, http.StatusInternalServerError, "create invoice failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, h.invoiceView(inv))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	inv, err := h.Invoices.GetInvoice(r.Context(), address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invoice not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get invoice failed")
		return
	}

	writeJSON(w, http.StatusOK, h.invoiceView(inv))
}

// HandlePayment is the webhook endpoint the payment processor keeps
// calling until it receives the terminal acknowledgment.
func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	value, err := strconv.ParseInt(q.Get("value"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "got invalid payment status update")
		return
	}
	confirmations, err := strconv.ParseInt(q.Get("confirmations"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "got invalid payment status update")
		return
	}

	ack, err := h.Payments.HandleNotification(r.Context(), services.Notification{
		Address:         q.Get("address"),
		Signature:       q.Get("signature"),
		TransactionHash: q.Get("transaction_hash"),
		Value:           value,
		Confirmations:   confirmations,
	})
	if err != nil {
		if errors.Is(err, services.ErrAuthenticationFailed) || errors.Is(err, invoice.ErrAmountMismatch) {
			writeText(w, http.StatusBadRequest, "got invalid payment status update")
			return
		}
		writeText(w, http.StatusInternalServerError, "payment update failed")
		return
	}

	writeText(w, http.StatusOK, ack)
}

// QR renders a bitcoin: payment request URI as a PNG.
func (h *Handler) QR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	values := url.Values{}
	values.Set("amount", q.Get("amount"))
	if message := q.Get("message"); message != "" {
		values.Set("message", message)
	}
	uri := "bitcoin:" + address + "?" + values.Encode()

	size := h.QRSize
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr encoding failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
