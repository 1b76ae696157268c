package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(maxAttempts int) *Client {
	return NewClient("fetch_test", Options{
		MaxAttempts: maxAttempts,
		Backoff:     time.Millisecond,
		Timeout:     time.Second,
	})
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "hello")
		},
	))
	defer server.Close()

	body, err := newTestClient(4).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestFetchRetriesOn503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, "eventually")
		},
	))
	defer server.Close()

	body, err := newTestClient(4).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "eventually", string(body))
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, "eventually")
		},
	))
	defer server.Close()

	body, err := newTestClient(4).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "eventually", string(body))
	require.EqualValues(t, 3, calls.Load(), "429 must back off and retry, not fail fast")
}

type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestFetchRetriesNetworkFailureImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "recovered")
		},
	))
	defer server.Close()

	transport := &flakyTransport{failures: 2}
	client := NewClient("fetch_test", Options{
		MaxAttempts: 4,
		Backoff:     time.Second * 10,
		Timeout:     time.Second,
		Transport:   transport,
	})

	start := time.Now()
	body, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", string(body))
	require.EqualValues(t, 3, transport.calls.Load())
	require.Less(t, time.Since(start), time.Second*10,
		"network failures retry without the throttle backoff")
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer server.Close()

	_, err := newTestClient(4).Fetch(context.Background(), server.URL)

	var exhausted RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.Equal(t, http.StatusServiceUnavailable, exhausted.LastStatus)
	require.EqualValues(t, 4, calls.Load())
}

func TestFetchNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		},
	))
	defer server.Close()

	_, err := newTestClient(4).Fetch(context.Background(), server.URL)

	var notFound NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.EqualValues(t, 1, calls.Load(), "404 must not be retried")
}

func TestFetchFatalStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	))
	defer server.Close()

	_, err := newTestClient(4).Fetch(context.Background(), server.URL)

	var fatal FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, http.StatusForbidden, fatal.StatusCode)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})

	res, err := newTestClient(4).FetchResult(context.Background(), server.URL+"/start")
	require.NoError(t, err)
	require.Equal(t, "landed", string(res.Body))
	require.Equal(t, server.URL+"/end", res.FinalURL)
}

func TestFetchRedirectsCountAgainstAttempts(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	_, err := newTestClient(3).Fetch(context.Background(), server.URL+"/loop")

	var exhausted RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
}

func TestFetchCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(4).Fetch(ctx, server.URL)
	require.ErrorIs(t, err, context.Canceled)
}
