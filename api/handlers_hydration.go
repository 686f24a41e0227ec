package api

import (
	"net/http"
	"time"

	"github.com/status-im/market-hydrator/cache"
	"github.com/status-im/market-hydrator/hydration"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/preload"
)

type routeView struct {
	Kind     models.DomainKind `json:"kind"`
	Currency models.Currency   `json:"currency"`
	Page     int               `json:"page,omitempty"`
	ID       string            `json:"id,omitempty"`
}

type hydrationResponse struct {
	ServerVersion string                                      `json:"server_version"`
	Currency      models.Currency                             `json:"currency"`
	LoggedIn      bool                                        `json:"logged_in"`
	Route         *routeView                                  `json:"route,omitempty"`
	Domains       map[models.DomainKind]hydration.DomainState `json:"domains"`
	InFlight      []preload.Entry                             `json:"in_flight"`
	Waiting       []string                                    `json:"waiting"`
	Cache         cache.ServiceStats                          `json:"cache"`
	RatesRefresh  *time.Time                                  `json:"rates_scheduled_refresh,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func viewRoute(route models.Domain) *routeView {
	if route == nil {
		return nil
	}
	return models.MatchDomain(route,
		func(p models.PopularCoins) *routeView {
			return &routeView{Kind: p.Kind(), Currency: p.Currency, Page: p.Page}
		},
		func(d models.CoinDetailsOf) *routeView {
			return &routeView{Kind: d.Kind(), Currency: d.Currency, ID: d.ID}
		},
	)
}

// handleHydration reports the domain states and the preloads in flight
func (s *Server) handleHydration(w http.ResponseWriter, r *http.Request) {
	s.sendJSONResponse(w, hydrationResponse{
		ServerVersion: s.controller.ServerVersion(),
		Currency:      s.cache.Currency(),
		LoggedIn:      stateFrom(r.Context()).LoggedIn,
		Route:         viewRoute(s.controller.Route()),
		Domains:       s.controller.States(),
		InFlight:      s.coordinator.Registry().Snapshot(),
		Waiting:       s.coordinator.Waiting(),
		Cache:         s.cache.Stats(),
		RatesRefresh:  optionalTime(s.controller.LastScheduledRatesRefresh()),
	})
}
