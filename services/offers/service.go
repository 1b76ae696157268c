// Package offers aggregates product offers and merchant reputation
// across every registered source. Sources are consulted in parallel
// and one source failing never takes down the batch.
package offers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("services/offers")

// ErrNoData means every consulted source failed, which is different
// from every source answering with zero offers.
var ErrNoData = errors.New("no offer data available")

// OfferSource fetches the offer set for one product code.
type OfferSource interface {
	Source() *sources.Source
	FetchOffers(ctx context.Context, productCode string) ([]offers.Offer, error)
}

// MerchantSource resolves a merchant code or page url to a profile.
type MerchantSource interface {
	Source() *sources.Source
	FetchMerchantProfile(ctx context.Context, codeOrURL string) (offers.MerchantProfile, error)
}

// MerchantSearcher finds merchants by name.
type MerchantSearcher interface {
	Source() *sources.Source
	SearchMerchants(ctx context.Context, query string, limit int) ([]offers.MerchantProfile, error)
}

type Service struct {
	offerSources    map[string]OfferSource
	merchantSources map[string]MerchantSource
	searchers       map[string]MerchantSearcher
}

func NewService() *Service {
	return &Service{
		offerSources:    map[string]OfferSource{},
		merchantSources: map[string]MerchantSource{},
		searchers:       map[string]MerchantSearcher{},
	}
}

// Register wires an adapter in under its source keyname. Adapters are
// registered once at startup, the tables are not synchronized.
func (s *Service) Register(adapter any) {
	if src, ok := adapter.(OfferSource); ok {
		s.offerSources[src.Source().Keyname] = src
	}
	if src, ok := adapter.(MerchantSource); ok {
		s.merchantSources[src.Source().Keyname] = src
	}
	if src, ok := adapter.(MerchantSearcher); ok {
		s.searchers[src.Source().Keyname] = src
	}
}

// OffersResult holds per-source outcomes of a batch fetch.
type OffersResult struct {
	BySource map[string][]offers.Offer
	Errors   map[string]error
}

// NoData reports whether not a single source produced an answer.
func (r OffersResult) NoData() bool {
	return len(r.BySource) == 0
}

// Merged flattens every source's offers into one merged, sorted list.
func (r OffersResult) Merged() []offers.Offer {
	var all []offers.Offer
	for _, list := range r.BySource {
		all = append(all, list...)
	}
	merged := offers.Merge(all)
	offers.Sort(merged)
	return merged
}

// FetchOffers fetches offers from each source in productCodes, keyed
// by source keyname. Sources run concurrently, each throttled by its
// own policy. A source with offers disabled is skipped, a code that
// fails the source's identifier shape is rejected without a fetch.
// The returned error is only ever the context's.
func (s *Service) FetchOffers(ctx context.Context, productCodes map[string]string) (OffersResult, error) {
	ctx, span := tracer.Start(ctx, "FetchOffers")
	defer span.End()

	result := OffersResult{
		BySource: map[string][]offers.Offer{},
		Errors:   map[string]error{},
	}

	mu := sync.Mutex{}
	group, ctx := errgroup.WithContext(ctx)

	for keyname, productCode := range productCodes {
		adapter, ok := s.offerSources[keyname]
		if !ok {
			result.Errors[keyname] = sources.ConfigurationError{
				Source: keyname,
				Detail: "no offer source registered",
			}
			continue
		}
		if !adapter.Source().OffersEnabled {
			slog.DebugContext(ctx, "offers disabled for source, skipping",
				"source", keyname)
			continue
		}
		if !adapter.Source().ValidProductCode(productCode) {
			result.Errors[keyname] = sources.InvalidProductCodeError{
				Source: keyname,
				Code:   productCode,
			}
			continue
		}

		keyname, productCode := keyname, productCode
		group.Go(func() error {
			list, err := adapter.FetchOffers(ctx, productCode)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.WarnContext(ctx, "source failed to fetch offers",
					"source", keyname, "product_code", productCode, "err", err)
				mu.Lock()
				result.Errors[keyname] = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result.BySource[keyname] = list
			mu.Unlock()
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return OffersResult{}, err
	}
	return result, nil
}

// FetchBestOffer fetches and merges offers for a product across
// sources and returns the best available one. The second return is
// false when fewer than minNumOffersToQualify offers were found.
func (s *Service) FetchBestOffer(ctx context.Context, productCodes map[string]string, minNumOffersToQualify int) (offers.Offer, bool, error) {
	ctx, span := tracer.Start(ctx, "FetchBestOffer")
	defer span.End()

	result, err := s.FetchOffers(ctx, productCodes)
	if err != nil {
		return offers.Offer{}, false, err
	}
	if result.NoData() {
		err := errors.Join(append([]error{ErrNoData}, errorValues(result.Errors)...)...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return offers.Offer{}, false, err
	}

	best, ok := offers.Best(result.Merged(), minNumOffersToQualify)
	return best, ok, nil
}

func errorValues(bySource map[string]error) []error {
	var list []error
	for _, err := range bySource {
		list = append(list, err)
	}
	return list
}

// FetchMerchantProfile resolves a merchant through one source.
func (s *Service) FetchMerchantProfile(ctx context.Context, keyname, codeOrURL string) (offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "FetchMerchantProfile")
	defer span.End()

	adapter, ok := s.merchantSources[keyname]
	if !ok {
		return offers.MerchantProfile{}, sources.ConfigurationError{
			Source: keyname,
			Detail: "no merchant source registered",
		}
	}
	return adapter.FetchMerchantProfile(ctx, codeOrURL)
}

// SearchMerchants finds merchants by name through one source.
func (s *Service) SearchMerchants(ctx context.Context, keyname, query string, limit int) ([]offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "SearchMerchants")
	defer span.End()

	adapter, ok := s.searchers[keyname]
	if !ok {
		return nil, sources.ConfigurationError{
			Source: keyname,
			Detail: "no merchant search registered",
		}
	}
	return adapter.SearchMerchants(ctx, query, limit)
}
