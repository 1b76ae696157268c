package sources

import (
	"net/url"
)

// affiliate query parameters per source, stripped by NullifyOfferURL.
var affiliateParams = map[string][]string{
	Amazon:    {"tag"},
	Shopping:  {"AF_ID", "af_id", "TR"},
	Shopzilla: {"af_id", "af_creative_id", "af_assettype_id"},
}

// NullifyOfferURL strips the affiliate identifiers from an offer url
// so the link can be shown or stored without crediting a click. Urls
// from sources without affiliate links pass through untouched.
func (s *Source) NullifyOfferURL(offerURL string) string {
	if !s.OfferAffiliate {
		return offerURL
	}
	params, ok := affiliateParams[s.Keyname]
	if !ok {
		return offerURL
	}

	parsed, err := url.Parse(offerURL)
	if err != nil {
		return offerURL
	}
	query := parsed.Query()
	for _, name := range params {
		query.Del(name)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
