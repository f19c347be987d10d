package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"BTCPayGateway/internal/pubsub"
	"BTCPayGateway/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the stream only reveals what the invoice status endpoint already does
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes invoice records to a websocket client as
// reconciliation updates them.
type StreamHandler struct {
	Invoices *services.InvoiceService
	Events   *pubsub.PubSub
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, updates := h.Events.Subscribe(address)
	defer h.Events.Unsubscribe(address, id)

	// current snapshot first, then live updates
	if inv, err := h.Invoices.GetInvoice(r.Context(), address); err == nil {
		if err := conn.WriteJSON(inv.Record()); err != nil {
			return
		}
	}

	// drain the client side so close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
