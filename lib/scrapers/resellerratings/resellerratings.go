// Package resellerratings scrapes resellerratings.com, the only
// source here with no API at all. The site sits behind bot
// protection and leans on redirects: searching for a store can land
// directly on its review page, and the final url is itself data.
package resellerratings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bazaar-backend/lib/extract"
	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/offers"
	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"
	"bazaar-backend/lib/textutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

var tracer = telemetry.Tracer("lib/scrapers/resellerratings")

const defaultSiteBaseURL = "http://www.resellerratings.com"

var (
	altCodePattern    = regexp.MustCompile(`resellerratings\.com/store/([^/?#]*)`)
	storePathPattern  = regexp.MustCompile(`/store/(.+)$`)
	codeDigitsPattern = regexp.MustCompile(`([0-9]+)`)
	ratingOfPattern   = regexp.MustCompile(`\s*(.*?)\s*/`)
)

type Config struct {
	// base url override for tests
	SiteBaseURL string `json:"site_base_url"`
}

type Scraper struct {
	client *fetch.Client
	cache  respcache.Store
	source *sources.Source
	config Config
}

func NewScraper(pctx sources.PipelineContext, config Config) (*Scraper, error) {
	source, err := pctx.Registry.BySourceName(sources.ResellerRatings)
	if err != nil {
		return nil, err
	}
	if config.SiteBaseURL == "" {
		config.SiteBaseURL = defaultSiteBaseURL
	}

	transport := pctx.Transport
	if transport == nil {
		transport = cloudflarebp.AddCloudFlareByPass(http.DefaultTransport)
	}

	return &Scraper{
		client: fetch.NewClient("lib/scrapers/resellerratings", fetch.Options{
			MaxAttempts: 4,
			Timeout:     time.Second * 30,
			Transport:   transport,
		}),
		cache:  pctx.Cache,
		source: source,
		config: config,
	}, nil
}

func (s *Scraper) Source() *sources.Source {
	return s.source
}

// AltCodeFromPageURL extracts the store slug from a review page url.
func AltCodeFromPageURL(pageURL string) (string, bool) {
	m := altCodePattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (s *Scraper) storePageURL(altCode string) string {
	return fmt.Sprintf("%s/store/%s", s.config.SiteBaseURL, altCode)
}

func (s *Scraper) searchURL(query string) string {
	return fmt.Sprintf(
		"%s/reseller_list.pl?keyword_search=%s",
		s.config.SiteBaseURL, url.QueryEscape(strings.TrimSpace(query)),
	)
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (fetch.Result, error) {
	key := "resellerratings-page-" + pageURL
	if body, ok := s.cache.Get(ctx, key); ok {
		// cached bodies were stored with their final url baked in
		return decodeCachedResult(body), nil
	}

	err := s.source.Throttle(ctx)
	if err != nil {
		return fetch.Result{}, err
	}
	result, err := s.client.FetchResult(ctx, pageURL)
	if err != nil {
		return fetch.Result{}, err
	}
	s.cache.Set(ctx, key, encodeCachedResult(result), time.Minute*10)
	return result, nil
}

// the final url matters as much as the body, so both go in the cache
// entry, final url first, separated by a newline.
func encodeCachedResult(result fetch.Result) []byte {
	return append([]byte(result.FinalURL+"\n"), result.Body...)
}

func decodeCachedResult(body []byte) fetch.Result {
	split := strings.IndexByte(string(body), '\n')
	if split < 0 {
		return fetch.Result{Body: body}
	}
	return fetch.Result{
		FinalURL: string(body[:split]),
		Body:     body[split+1:],
	}
}

// FetchMerchantProfile scrapes a merchant review page given its url.
func (s *Scraper) FetchMerchantProfile(ctx context.Context, pageURL string) (offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "FetchMerchantProfile")
	defer span.End()

	result, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return offers.MerchantProfile{}, err
	}
	return s.parseMerchantPage(result)
}

// FetchMerchantProfileByAltCode is FetchMerchantProfile keyed by the
// store slug.
func (s *Scraper) FetchMerchantProfileByAltCode(ctx context.Context, altCode string) (offers.MerchantProfile, error) {
	return s.FetchMerchantProfile(ctx, s.storePageURL(altCode))
}

func (s *Scraper) parseMerchantPage(result fetch.Result) (offers.MerchantProfile, error) {
	doc, err := extract.Parse(result.Body, extract.HTML)
	if err != nil {
		return offers.MerchantProfile{}, err
	}

	profile := offers.MerchantProfile{
		Source: sources.ResellerRatings,
		URL:    result.FinalURL,
	}

	// the numeric merchant code only appears in the write-a-review link
	for _, link := range doc.Search("a:has(img)") {
		if !strings.Contains(link.At("img").Attr("src"), "write_a_review") {
			continue
		}
		if m := codeDigitsPattern.FindStringSubmatch(link.Attr("href")); m != nil {
			profile.Code = m[1]
		}
		break
	}
	if profile.Code == "" {
		return offers.MerchantProfile{}, fetch.NotFoundError{URL: result.FinalURL}
	}

	if parsed, err := url.Parse(result.FinalURL); err == nil {
		if m := storePathPattern.FindStringSubmatch(parsed.Path); m != nil {
			profile.AltCode = m[1]
		}
	}

	for _, img := range doc.Search("img") {
		if strings.Contains(img.Attr("src"), "small-storefront") {
			profile.Name = img.Parent().Parent().Text()
			break
		}
	}

	if node := labeledFont(doc, "Homepage:"); node.Exists() {
		profile.Homepage = node.At("a").Text()
	}
	if rating, ok := ratedValue(doc, "Six-Month Rating:"); ok {
		profile.Rating = s.source.NormalizeRating(rating)
	}
	if reviews, ok := labeledCount(doc, "Six-Month Reviews:"); ok {
		profile.NumReviews = reviews
	}
	if rating, ok := ratedValue(doc, "Lifetime Rating:"); ok {
		profile.RatingLifetime = s.source.NormalizeRating(rating)
	}
	if reviews, ok := labeledCount(doc, "Lifetime Reviews:"); ok {
		profile.NumReviewsLifetime = reviews
	}

	return profile, nil
}

// labeledFont finds the font element whose text carries the given
// label. Labels sometimes wrap across lines, so whitespace is
// collapsed before matching.
func labeledFont(doc *extract.Document, label string) extract.Node {
	for _, font := range doc.Search("font") {
		if strings.Contains(textutil.CollapseWhitespace(font.Text()), label) {
			return font
		}
	}
	return extract.Node{}
}

// ratedValue reads a "9.2 / 10" style rating next to its label.
func ratedValue(doc *extract.Document, label string) (float64, bool) {
	node := labeledFont(doc, label)
	if !node.Exists() {
		return 0, false
	}
	fonts := node.Parent().Search("font")
	if len(fonts) < 2 {
		return 0, false
	}
	m := ratingOfPattern.FindStringSubmatch(fonts[1].Text())
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// labeledCount reads the review count cell next to its label.
func labeledCount(doc *extract.Document, label string) (int, bool) {
	node := labeledFont(doc, label)
	if !node.Exists() {
		return 0, false
	}
	cells := node.Parent().Parent().Search("td")
	if len(cells) < 2 {
		return 0, false
	}
	count, err := strconv.Atoi(strings.ReplaceAll(cells[1].Text(), ",", ""))
	if err != nil {
		return 0, false
	}
	return count, true
}

// SearchMerchants runs a store search. The site redirects straight to
// the review page when there is a single match, in which case the one
// profile comes back fully populated.
func (s *Scraper) SearchMerchants(ctx context.Context, query string, limit int) ([]offers.MerchantProfile, error) {
	ctx, span := tracer.Start(ctx, "SearchMerchants")
	defer span.End()

	result, err := s.fetchPage(ctx, s.searchURL(query))
	if err != nil {
		return nil, err
	}

	if storePathPattern.MatchString(result.FinalURL) {
		profile, err := s.parseMerchantPage(result)
		if err != nil {
			return nil, err
		}
		return []offers.MerchantProfile{profile}, nil
	}

	doc, err := extract.Parse(result.Body, extract.HTML)
	if err != nil {
		return nil, err
	}

	profiles := []offers.MerchantProfile{}
	for _, row := range doc.Search("tr") {
		if !rowHasReadReviewsLink(row) {
			continue
		}
		link := row.At("td a")
		if !link.Exists() {
			continue
		}
		m := storePathPattern.FindStringSubmatch(link.Attr("href"))
		if m == nil {
			continue
		}
		profiles = append(profiles, offers.MerchantProfile{
			Source:  sources.ResellerRatings,
			AltCode: m[1],
			Name:    link.Text(),
		})
		if limit > 0 && len(profiles) >= limit {
			break
		}
	}

	return profiles, nil
}

func rowHasReadReviewsLink(row extract.Node) bool {
	for _, link := range row.Search("td font a") {
		if link.Text() == "Read Reviews" {
			return true
		}
	}
	return false
}
