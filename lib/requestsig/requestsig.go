// Package requestsig builds canonical query strings for upstream product
// APIs, and where a source demands it, signs them with HMAC-SHA256.
package requestsig

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

var ErrMissingSecret = errors.New("source requires request signing but no secret is configured")

// escape percent-encodes a value exactly once. Values that already
// carry %-escapes are decoded first so double encoding cannot happen;
// a literal '+' in a plain value survives as %2B. Spaces become %20,
// never '+'.
func escape(value string) string {
	decoded := value
	if strings.Contains(value, "%") {
		if d, err := url.QueryUnescape(value); err == nil {
			decoded = d
		}
	}
	return strings.ReplaceAll(url.QueryEscape(decoded), "+", "%20")
}

// Canonical renders params as a deterministic query string: keys in
// lexicographic order, repeated keys keeping their given value order.
func Canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

// Fingerprint derives a cache key from the unsigned canonical
// parameters. Timestamp and Signature never participate, so a signed
// request fingerprints identically no matter when it is signed.
func Fingerprint(source, version string, params url.Values) string {
	unsigned := url.Values{}
	for k, vs := range params {
		if k == "Timestamp" || k == "Signature" {
			continue
		}
		unsigned[k] = vs
	}
	sum := md5.Sum([]byte(Canonical(unsigned)))
	return fmt.Sprintf("%s-api-%x-%s", strings.ToLower(source), sum, version)
}

// Sign injects a fresh UTC Timestamp, computes the HMAC-SHA256
// signature over "METHOD\nhost\npath\ncanonical-query" and returns the
// full query string with the Signature parameter appended.
func Sign(method, host, path string, params url.Values, secret []byte, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}

	signed := url.Values{}
	for k, vs := range params {
		signed[k] = vs
	}
	signed.Set("Timestamp", now.UTC().Format("2006-01-02T15:04:05Z"))

	query := Canonical(signed)
	toSign := fmt.Sprintf("%s\n%s\n%s\n%s", method, host, path, query)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(toSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return query + "&Signature=" + escape(signature), nil
}

// SignedURL is Sign with the scheme/host/path assembled into a full URL.
func SignedURL(scheme, host, path string, params url.Values, secret []byte, now time.Time) (string, error) {
	query, err := Sign("GET", host, path, params, secret, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, host, path, query), nil
}
