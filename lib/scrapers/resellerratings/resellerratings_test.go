package resellerratings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bazaar-backend/lib/fetch"
	"bazaar-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

const merchantPage = `<html><body>
<table><tr>
	<td><img src="http://images.resellerratings.com/images/small-storefront-rev.gif"/></td>
	<td>Acme Computers</td>
</tr></table>
<a href="/writereview/8675309"><img src="http://images.resellerratings.com/images/write_a_review.gif"/></a>
<table>
<tr><td><font>Homepage: <a href="http://www.acme.example"><font>http://www.acme.example</font></a></font></td></tr>
<tr><td><font>Six-Month Rating:</font><font>9.2 / 10</font></td><td>142</td></tr>
<tr><td><font>Six-Month Reviews:</font></td><td>142</td></tr>
<tr><td><font>Lifetime Rating:</font><font>8.7 / 10</font></td><td>1,532</td></tr>
<tr><td><font>Lifetime
Reviews:</font></td><td>1,532</td></tr>
</table>
</body></html>`

const searchResultsPage = `<html><body>
<table>
<tr>
	<td><a href="/store/Acme_Computers">Acme Computers</a></td>
	<td><font><a href="/store/Acme_Computers">Read Reviews</a></font></td>
</tr>
<tr>
	<td><a href="/store/Acme_Outlet">Acme Outlet</a></td>
	<td><font><a href="/store/Acme_Outlet">Read Reviews</a></font></td>
</tr>
<tr>
	<td><a href="/help">Not a store</a></td>
</tr>
</table>
</body></html>`

func newTestScraper(t *testing.T, handler http.Handler) (*Scraper, *httptest.Server) {
	pctx, cleanup := testutil.SetupPipeline(t, "resellerratings_test")
	t.Cleanup(cleanup)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	scraper, err := NewScraper(pctx, Config{SiteBaseURL: server.URL})
	require.NoError(t, err)
	return scraper, server
}

func TestFetchMerchantProfileByAltCode(t *testing.T) {
	scraper, _ := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, merchantPage)
		},
	))

	profile, err := scraper.FetchMerchantProfileByAltCode(context.Background(), "Acme_Computers")
	require.NoError(t, err)
	require.Equal(t, "8675309", profile.Code)
	require.Equal(t, "Acme Computers", profile.Name)
	require.Equal(t, "http://www.acme.example", profile.Homepage)
	require.InDelta(t, 92, profile.Rating, 0.001)
	require.Equal(t, 142, profile.NumReviews)
	require.InDelta(t, 87, profile.RatingLifetime, 0.001)
	require.Equal(t, 1532, profile.NumReviewsLifetime)
}

func TestFetchMerchantProfileNoCode(t *testing.T) {
	scraper, _ := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><body>nothing here</body></html>")
		},
	))

	_, err := scraper.FetchMerchantProfileByAltCode(context.Background(), "Ghost_Store")

	var notFound fetch.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSearchMerchantsList(t *testing.T) {
	scraper, _ := newTestScraper(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "acme", r.URL.Query().Get("keyword_search"))
			fmt.Fprint(w, searchResultsPage)
		},
	))

	profiles, err := scraper.SearchMerchants(context.Background(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "Acme_Computers", profiles[0].AltCode)
	require.Equal(t, "Acme Computers", profiles[0].Name)
	require.Equal(t, "Acme_Outlet", profiles[1].AltCode)

	limited, err := scraper.SearchMerchants(context.Background(), "acme", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSearchMerchantsRedirectsToStorePage(t *testing.T) {
	mux := http.NewServeMux()
	scraper, server := newTestScraper(t, mux)

	mux.HandleFunc("/reseller_list.pl", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/store/Acme_Computers", http.StatusFound)
	})
	mux.HandleFunc("/store/Acme_Computers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, merchantPage)
	})
	_ = server

	profiles, err := scraper.SearchMerchants(context.Background(), "acme computers", 10)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	// a single match resolves through the redirect to a full profile
	require.Equal(t, "8675309", profiles[0].Code)
	require.Equal(t, "Acme_Computers", profiles[0].AltCode)
}

func TestAltCodeFromPageURL(t *testing.T) {
	alt, ok := AltCodeFromPageURL("http://www.resellerratings.com/store/Acme_Computers")
	require.True(t, ok)
	require.Equal(t, "Acme_Computers", alt)

	_, ok = AltCodeFromPageURL("http://www.resellerratings.com/reseller_list.pl")
	require.False(t, ok)
}
