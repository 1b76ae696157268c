package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/sources"
	offersvc "bazaar-backend/services/offers"
)

type api struct {
	registry *sources.Registry
	service  *offersvc.Service
}

func registerRoutes(mux *http.ServeMux, registry *sources.Registry, service *offersvc.Service) {
	a := api{registry: registry, service: service}
	mux.HandleFunc("/v1/offers", a.handleOffers)
	mux.HandleFunc("/v1/merchant", a.handleMerchant)
	mux.HandleFunc("/v1/merchant/search", a.handleMerchantSearch)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var notFound fetch.NotFoundError
	var confErr sources.ConfigurationError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &confErr):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type offersResponse struct {
	BySource map[string][]offers.Offer `json:"by_source"`
	Errors   map[string]string         `json:"errors,omitempty"`
	Merged   []offers.Offer            `json:"merged"`
	Best     *offers.Offer             `json:"best,omitempty"`
}

// GET /v1/offers?AMAZON=<asin>&SHOPPING=<id>&min_qualify=2
func (a api) handleOffers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	productCodes := map[string]string{}
	for _, keyname := range a.registry.Keynames() {
		code := query.Get(keyname)
		if code != "" {
			productCodes[keyname] = code
		}
	}
	if len(productCodes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no product codes given",
		})
		return
	}

	result, err := a.service.FetchOffers(r.Context(), productCodes)
	if err != nil {
		writeError(w, err)
		return
	}

	response := offersResponse{
		BySource: result.BySource,
		Errors:   map[string]string{},
		Merged:   result.Merged(),
	}
	for keyname, sourceErr := range result.Errors {
		response.Errors[keyname] = sourceErr.Error()
	}

	if minQualify := query.Get("min_qualify"); minQualify != "" {
		min, err := strconv.Atoi(minQualify)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "min_qualify must be an integer",
			})
			return
		}
		if best, ok := offers.Best(response.Merged, min); ok {
			response.Best = &best
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// GET /v1/merchant?source=RESELLER_RATINGS&code=<code-or-url>
func (a api) handleMerchant(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	code := r.URL.Query().Get("code")
	if source == "" || code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "source and code are required",
		})
		return
	}

	profile, err := a.service.FetchMerchantProfile(r.Context(), source, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GET /v1/merchant/search?source=SHOPPING&q=<query>&limit=10
func (a api) handleMerchantSearch(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	query := r.URL.Query().Get("q")
	if source == "" || query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "source and q are required",
		})
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer",
			})
			return
		}
		limit = parsed
	}

	profiles, err := a.service.SearchMerchants(r.Context(), source, query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}
