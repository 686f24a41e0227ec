package e2etest

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockCoin is one coin served by the mock, priced in USD
type MockCoin struct {
	ID       string
	Symbol   string
	Name     string
	Rank     int
	PriceUSD float64
}

// MockServer serves the subset of the CoinGecko API the client uses and counts
// requests per path
type MockServer struct {
	server *httptest.Server

	mu       sync.Mutex
	coins    []MockCoin
	values   map[string]float64 // exchange_rates: units of currency per BTC
	failing  map[string]bool
	requests map[string]int
}

// NewMockServer creates and returns a new mock server
func NewMockServer() *MockServer {
	ms := &MockServer{
		coins: []MockCoin{
			{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Rank: 1, PriceUSD: 50000},
			{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Rank: 2, PriceUSD: 2500},
		},
		values: map[string]float64{
			"btc": 1,
			"usd": 50000,
			"cad": 67500,
		},
		failing:  make(map[string]bool),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)
	ms.server = httptest.NewServer(mux)
	return ms
}

// GetURL returns the base URL of the mock server
func (ms *MockServer) GetURL() string {
	return ms.server.URL
}

// Close shuts the mock server down
func (ms *MockServer) Close() {
	if ms.server != nil {
		ms.server.Close()
	}
}

// FailCoin makes details requests for id fail
func (ms *MockServer) FailCoin(id string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failing[id] = true
}

// Requests returns how many requests hit path
func (ms *MockServer) Requests(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.requests[path]
}

func (ms *MockServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("MockServer: failed to encode response: %v", err)
	}
}

// rate converts USD into currency
func (ms *MockServer) rate(currency string) (float64, bool) {
	value, ok := ms.values[currency]
	if !ok {
		return 0, false
	}
	return value / ms.values["usd"], true
}

// handleRequest processes incoming requests and returns mock data
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.requests[path]++

	switch {
	case path == "/api/v3/exchange_rates":
		ms.handleExchangeRates(w)
	case path == "/api/v3/coins/markets":
		ms.handleMarkets(w, r)
	case strings.HasPrefix(path, "/api/v3/coins/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/v3/coins/"), "/")
		switch {
		case len(parts) == 1:
			ms.handleCoin(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "market_chart":
			ms.handleMarketChart(w, r, parts[0])
		default:
			http.NotFound(w, r)
		}
	default:
		http.NotFound(w, r)
	}
}

func (ms *MockServer) handleExchangeRates(w http.ResponseWriter) {
	rates := make(map[string]map[string]interface{}, len(ms.values))
	for currency, value := range ms.values {
		rates[currency] = map[string]interface{}{"value": value, "unit": strings.ToUpper(currency)}
	}
	ms.writeJSON(w, map[string]interface{}{"rates": rates})
}

func (ms *MockServer) handleMarkets(w http.ResponseWriter, r *http.Request) {
	rate, ok := ms.rate(r.URL.Query().Get("vs_currency"))
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		ms.writeJSON(w, map[string]interface{}{"error": "invalid vs_currency"})
		return
	}

	rows := []map[string]interface{}{}
	if page, _ := strconv.Atoi(r.URL.Query().Get("page")); page <= 1 {
		for _, coin := range ms.coins {
			price := coin.PriceUSD * rate
			rows = append(rows, map[string]interface{}{
				"id":                          coin.ID,
				"symbol":                      coin.Symbol,
				"name":                        coin.Name,
				"current_price":               price,
				"market_cap":                  price * 1000,
				"total_volume":                price * 10,
				"market_cap_rank":             coin.Rank,
				"price_change_percentage_24h": 1.5,
			})
		}
	}
	ms.writeJSON(w, rows)
}

func (ms *MockServer) findCoin(id string) (MockCoin, bool) {
	for _, coin := range ms.coins {
		if coin.ID == id {
			return coin, true
		}
	}
	return MockCoin{}, false
}

func (ms *MockServer) handleCoin(w http.ResponseWriter, r *http.Request, id string) {
	coin, ok := ms.findCoin(id)
	if !ok || ms.failing[id] {
		w.WriteHeader(http.StatusNotFound)
		ms.writeJSON(w, map[string]interface{}{"error": "coin not found"})
		return
	}

	byCurrency := func(scale float64) map[string]float64 {
		out := make(map[string]float64)
		for currency := range ms.values {
			if rate, ok := ms.rate(currency); ok && currency != "btc" {
				out[currency] = coin.PriceUSD * rate * scale
			}
		}
		return out
	}
	ms.writeJSON(w, map[string]interface{}{
		"id":              coin.ID,
		"symbol":          coin.Symbol,
		"name":            coin.Name,
		"market_cap_rank": coin.Rank,
		"image":           map[string]string{"large": "https://img/" + coin.ID + ".png"},
		"description":     map[string]string{"en": coin.Name + " description"},
		"market_data": map[string]interface{}{
			"current_price":                           byCurrency(1),
			"market_cap":                              byCurrency(1000),
			"total_volume":                            byCurrency(10),
			"price_change_24h_in_currency":            byCurrency(0.01),
			"price_change_percentage_24h_in_currency": map[string]float64{"usd": 1},
			"price_change_percentage_7d_in_currency":  map[string]float64{"usd": 2},
			"price_change_percentage_30d_in_currency": map[string]float64{"usd": 3},
			"price_change_percentage_1y_in_currency":  map[string]float64{"usd": 4},
		},
	})
}

func (ms *MockServer) handleMarketChart(w http.ResponseWriter, r *http.Request, id string) {
	coin, ok := ms.findCoin(id)
	rate, rateOK := ms.rate(r.URL.Query().Get("vs_currency"))
	if !ok || !rateOK || ms.failing[id] {
		w.WriteHeader(http.StatusNotFound)
		ms.writeJSON(w, map[string]interface{}{"error": "coin not found"})
		return
	}
	price := coin.PriceUSD * rate
	ms.writeJSON(w, map[string]interface{}{
		"prices": [][]float64{
			{1700000000000, price * 0.9},
			{1700003600000, price},
		},
	})
}
