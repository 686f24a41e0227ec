package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/status-im/market-hydrator/models"
)

const (
	headerCurrency     = "X-Current-Currency"
	headerCacheVersion = "X-Global-Cache-Version"
	headerLoggedIn     = "X-Is-Logged-In"

	cookieCurrency     = "currency"
	cookieLoggedIn     = "logged_in"
	cookieUsePreloaded = "use_preloaded_data"
)

// clientState is what a request tells about the client it comes from
type clientState struct {
	Currency     models.Currency
	CacheVersion string
	LoggedIn     bool
	// UsePreloaded is false when the client asked not to be served persisted data
	UsePreloaded bool
}

type clientStateKey struct{}

func stateFrom(ctx context.Context) clientState {
	if state, ok := ctx.Value(clientStateKey{}).(clientState); ok {
		return state
	}
	return clientState{UsePreloaded: true}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) readClientState(r *http.Request) clientState {
	state := clientState{
		Currency:     s.cache.Currency(),
		CacheVersion: r.Header.Get(headerCacheVersion),
		UsePreloaded: true,
	}

	raw := r.Header.Get(headerCurrency)
	if raw == "" {
		raw = cookieValue(r, cookieCurrency)
	}
	if raw != "" {
		if currency, err := models.ParseCurrency(raw, s.supported); err == nil {
			state.Currency = currency
		} else {
			s.logger.WithError(err).Debug("Ignoring client currency")
		}
	}

	loggedIn := r.Header.Get(headerLoggedIn)
	if loggedIn == "" {
		loggedIn = cookieValue(r, cookieLoggedIn)
	}
	state.LoggedIn, _ = strconv.ParseBool(loggedIn)

	if v := cookieValue(r, cookieUsePreloaded); v != "" {
		if use, err := strconv.ParseBool(v); err == nil {
			state.UsePreloaded = use
		}
	}
	return state
}

// clientState stores the request's client state in its context and echoes it back
func (s *Server) clientState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := s.readClientState(r)
		w.Header().Set(headerLoggedIn, strconv.FormatBool(state.LoggedIn))
		s.setStateHeaders(w)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientStateKey{}, state)))
	})
}

// setStateHeaders reports the currency and cache version in effect
func (s *Server) setStateHeaders(w http.ResponseWriter) {
	w.Header().Set(headerCurrency, string(s.cache.Currency()))
	if version := s.controller.ServerVersion(); version != "" {
		w.Header().Set(headerCacheVersion, version)
	}
}

// syncCurrency switches to the client's currency when it differs from the active one
func (s *Server) syncCurrency(ctx context.Context, state clientState) {
	if state.Currency == s.cache.Currency() {
		return
	}
	if err := s.controller.ChangeCurrency(ctx, state.Currency); err != nil {
		s.logger.WithError(err).Warnf("Currency switch to %s incomplete", state.Currency)
	}
}
