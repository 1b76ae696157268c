package amazon

import (
	"context"
	"fmt"
	"time"

	"bazaar-backend/lib/extract"
)

type glancePage struct {
	Name     string
	LogoURL  string
	Homepage string
}

// scrapeAtAGlance pulls the merchant name, logo and homepage off the
// seller's at-a-glance page. The page layout is old and table heavy,
// the homepage is recognizable as the one external link whose text is
// its own href.
func (s *Scraper) scrapeAtAGlance(ctx context.Context, sellerID string) (glancePage, error) {
	ctx, span := tracer.Start(ctx, "scrapeAtAGlance")
	defer span.End()

	key := fmt.Sprintf("amazon-seller-%s-%s", sellerID, fingerprintVersion)
	body, ok := s.cache.Get(ctx, key)
	if !ok {
		err := s.source.Throttle(ctx)
		if err != nil {
			return glancePage{}, err
		}
		body, err = s.client.Fetch(ctx, s.atAGlanceURL(sellerID))
		if err != nil {
			return glancePage{}, err
		}
		s.cache.Set(ctx, key, body, time.Minute*10)
	}

	doc, err := extract.Parse(body, extract.HTML)
	if err != nil {
		return glancePage{}, err
	}

	page := glancePage{}
	if box := doc.At("td:has(h1.sans)"); box.Exists() {
		page.Name = box.At("h1.sans strong").Text()
		page.LogoURL = box.At("img").Attr("src")
	}
	for _, link := range doc.Search(`tr.tiny td a[target="_blank"]`) {
		if link.Text() == link.Attr("href") {
			page.Homepage = link.Text()
			break
		}
	}

	return page, nil
}
