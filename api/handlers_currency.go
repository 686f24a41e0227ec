package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/status-im/market-hydrator/models"
)

type currencyResponse struct {
	Currency models.Currency `json:"currency"`
	Previous models.Currency `json:"previous"`
}

// handleCurrency switches the display currency and remembers it in a cookie
func (s *Server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	currency, err := models.ParseCurrency(mux.Vars(r)["currency"], s.supported)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err)
		return
	}

	previous := s.cache.Currency()
	// data for the new currency is loaded best effort; failures show up in /hydration
	if err := s.controller.ChangeCurrency(r.Context(), currency); err != nil {
		s.logger.WithError(err).Warnf("Currency switch to %s incomplete", currency)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieCurrency,
		Value:    string(currency),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	s.sendJSONResponse(w, currencyResponse{Currency: currency, Previous: previous})
}
