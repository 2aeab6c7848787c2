package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/prices"
)

// PriceResponse is the result of a quote lookup; Price is null when no
// quote was found
type PriceResponse struct {
	Ticker string   `json:"ticker"`
	Price  *float64 `json:"price"`
}

// PriceHandler serves quote lookups and stock price refreshes
type PriceHandler struct {
	sessions Sessions
	lookup   datactx.PriceLookup
}

func NewPriceHandler(sessions Sessions, lookup datactx.PriceLookup) *PriceHandler {
	return &PriceHandler{sessions: sessions, lookup: lookup}
}

func (h *PriceHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/prices/refresh", h.RefreshAll).Methods("POST")
	router.HandleFunc("/prices/{ticker}", h.GetPrice).Methods("GET")
	router.HandleFunc("/stocks/{id}/price", h.RefreshStock).Methods("POST")
}

// GetPrice validates the ticker and looks up its latest price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	ticker := strings.TrimSpace(mux.Vars(r)["ticker"])
	if msg := prices.ValidateTicker(ticker); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{
		Ticker: ticker,
		Price:  h.lookup.Lookup(r.Context(), ticker),
	})
}

// RefreshStock updates the current price of one stock
func (h *PriceHandler) RefreshStock(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	updated, err := session.UpdateStockPrice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// RefreshAll runs a bulk refresh for the caller. It blocks until the run ends.
func (h *PriceHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	session := sessionFor(w, r, h.sessions)
	if session == nil {
		return
	}
	n, err := session.UpdateAllStockPrices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
