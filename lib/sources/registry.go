package sources

import (
	"os"
	"regexp"
	"time"

	"bazaar-backend/lib/configutil"
)

// PolicyConfig is the on-disk shape of a policy override. Durations
// are seconds.
type PolicyConfig struct {
	Name                    string   `json:"name"`
	Homepage                string   `json:"homepage"`
	CPC                     int64    `json:"cpc"`
	OffersEnabled           bool     `json:"offers_enabled"`
	OfferTTLSeconds         int      `json:"offer_ttl_seconds"`
	OfferAffiliate          bool     `json:"offer_affiliate"`
	UseForMerchantRatings   bool     `json:"use_for_merchant_ratings"`
	SupportsLifetimeRatings bool     `json:"supports_lifetime_ratings"`
	RatingFactor            float64  `json:"rating_factor"`
	BatchFetchDelaySeconds  int      `json:"batch_fetch_delay_seconds"`
	ProductCodeRegexp       string   `json:"product_code_regexp"`
	ProductCodeExamples     []string `json:"product_code_examples"`
	ProductPageLink         string   `json:"product_page_link"`
}

type RegistryConfig map[string]PolicyConfig

// PolicyOverride is one entry of an override file. Fields are pointers
// so that absent keys leave the builtin value alone while an explicit
// false or zero still lands.
type PolicyOverride struct {
	Name                    *string  `json:"name"`
	Homepage                *string  `json:"homepage"`
	CPC                     *int64   `json:"cpc"`
	OffersEnabled           *bool    `json:"offers_enabled"`
	OfferTTLSeconds         *int     `json:"offer_ttl_seconds"`
	OfferAffiliate          *bool    `json:"offer_affiliate"`
	UseForMerchantRatings   *bool    `json:"use_for_merchant_ratings"`
	SupportsLifetimeRatings *bool    `json:"supports_lifetime_ratings"`
	RatingFactor            *float64 `json:"rating_factor"`
	BatchFetchDelaySeconds  *int     `json:"batch_fetch_delay_seconds"`
	ProductCodeRegexp       *string  `json:"product_code_regexp"`
	ProductCodeExamples     []string `json:"product_code_examples"`
	ProductPageLink         *string  `json:"product_page_link"`
}

func (o PolicyOverride) apply(c *PolicyConfig) {
	if o.Name != nil {
		c.Name = *o.Name
	}
	if o.Homepage != nil {
		c.Homepage = *o.Homepage
	}
	if o.CPC != nil {
		c.CPC = *o.CPC
	}
	if o.OffersEnabled != nil {
		c.OffersEnabled = *o.OffersEnabled
	}
	if o.OfferTTLSeconds != nil {
		c.OfferTTLSeconds = *o.OfferTTLSeconds
	}
	if o.OfferAffiliate != nil {
		c.OfferAffiliate = *o.OfferAffiliate
	}
	if o.UseForMerchantRatings != nil {
		c.UseForMerchantRatings = *o.UseForMerchantRatings
	}
	if o.SupportsLifetimeRatings != nil {
		c.SupportsLifetimeRatings = *o.SupportsLifetimeRatings
	}
	if o.RatingFactor != nil {
		c.RatingFactor = *o.RatingFactor
	}
	if o.BatchFetchDelaySeconds != nil {
		c.BatchFetchDelaySeconds = *o.BatchFetchDelaySeconds
	}
	if o.ProductCodeRegexp != nil {
		c.ProductCodeRegexp = *o.ProductCodeRegexp
	}
	if o.ProductCodeExamples != nil {
		c.ProductCodeExamples = o.ProductCodeExamples
	}
	if o.ProductPageLink != nil {
		c.ProductPageLink = *o.ProductPageLink
	}
}

func defaultConfig() RegistryConfig {
	return RegistryConfig{
		Amazon: {
			Name:                   "Amazon",
			Homepage:               "http://www.amazon.com",
			CPC:                    12,
			OffersEnabled:          true,
			OfferTTLSeconds:        3600,
			OfferAffiliate:         true,
			UseForMerchantRatings:  true,
			RatingFactor:           20,
			BatchFetchDelaySeconds: 2,
			ProductCodeRegexp:      `^[a-zA-Z0-9]{10}$`,
			ProductCodeExamples:    []string{"B00EZPXYP4", "0974514055"},
			ProductPageLink:        "http://www.amazon.com/dp/%s",
		},
		Shopping: {
			Name:                   "Shopping.com",
			Homepage:               "http://www.shopping.com",
			CPC:                    50,
			OffersEnabled:          true,
			OfferTTLSeconds:        1800,
			OfferAffiliate:         true,
			UseForMerchantRatings:  true,
			RatingFactor:           20,
			BatchFetchDelaySeconds: 2,
		},
		Shopzilla: {
			Name:                   "Shopzilla",
			Homepage:               "http://www.shopzilla.com",
			CPC:                    39,
			OffersEnabled:          false,
			OfferTTLSeconds:        1800,
			OfferAffiliate:         true,
			UseForMerchantRatings:  true,
			RatingFactor:           10,
			BatchFetchDelaySeconds: 1,
			ProductCodeRegexp:      `^\d{7,11}$`,
			ProductCodeExamples:    []string{"1028968032", "852926140"},
			ProductPageLink:        "http://www.shopzilla.com/-/%s/shop",
		},
		ResellerRatings: {
			Name:                    "ResellerRatings",
			Homepage:                "http://www.resellerratings.com",
			UseForMerchantRatings:   true,
			SupportsLifetimeRatings: true,
			RatingFactor:            10,
			BatchFetchDelaySeconds:  5,
			ProductCodeRegexp:       `^\d{9}$`,
			ProductCodeExamples:     []string{"652196596", "676109333"},
			ProductPageLink:         "http://resellerratings.nextag.com/%s/resellerratings/prices-html",
		},
	}
}

type Registry struct {
	sources map[string]*Source
}

// DefaultConfig returns a copy of the builtin policy table, mainly so
// tests can tweak a policy before compiling a registry.
func DefaultConfig() RegistryConfig {
	return defaultConfig()
}

// RegistryFromConfig compiles an explicit policy table into a
// registry.
func RegistryFromConfig(config RegistryConfig) (*Registry, error) {
	return compile(config)
}

// DefaultRegistry builds a registry from the builtin policy table.
func DefaultRegistry() *Registry {
	registry, err := compile(defaultConfig())
	if err != nil {
		// the builtin table is static, a bad regexp here is a bug
		panic(err)
	}
	return registry
}

// LoadRegistry reads policy overrides from a json5 config file and
// merges them over the builtin table. A missing file yields the
// defaults.
func LoadRegistry(name string) (*Registry, error) {
	merged := defaultConfig()

	overrides, err := configutil.ReadConfig[map[string]PolicyOverride](name)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for keyname, override := range overrides {
		entry := merged[keyname]
		override.apply(&entry)
		merged[keyname] = entry
	}

	return compile(merged)
}

func compile(config RegistryConfig) (*Registry, error) {
	registry := &Registry{sources: map[string]*Source{}}

	for keyname, c := range config {
		policy := Policy{
			Keyname:                 keyname,
			Name:                    c.Name,
			Homepage:                c.Homepage,
			CPC:                     c.CPC,
			OffersEnabled:           c.OffersEnabled,
			OfferTTL:                time.Duration(c.OfferTTLSeconds) * time.Second,
			OfferAffiliate:          c.OfferAffiliate,
			UseForMerchantRatings:   c.UseForMerchantRatings,
			SupportsLifetimeRatings: c.SupportsLifetimeRatings,
			RatingFactor:            c.RatingFactor,
			BatchFetchDelay:         time.Duration(c.BatchFetchDelaySeconds) * time.Second,
			ProductCodeExamples:     c.ProductCodeExamples,
			ProductPageLink:         c.ProductPageLink,
		}
		if c.ProductCodeRegexp != "" {
			pattern, err := regexp.Compile(c.ProductCodeRegexp)
			if err != nil {
				return nil, ConfigurationError{
					Source: keyname,
					Detail: "invalid product_code_regexp: " + err.Error(),
				}
			}
			policy.ProductCodePattern = pattern
		}
		registry.sources[keyname] = newSource(policy)
	}

	return registry, nil
}

// BySourceName looks a source up by keyname.
func (r *Registry) BySourceName(keyname string) (*Source, error) {
	source, ok := r.sources[keyname]
	if !ok {
		return nil, ConfigurationError{Source: keyname, Detail: "not registered"}
	}
	return source, nil
}

// Keynames returns every registered source keyname.
func (r *Registry) Keynames() []string {
	names := []string{}
	for keyname := range r.sources {
		names = append(names, keyname)
	}
	return names
}
