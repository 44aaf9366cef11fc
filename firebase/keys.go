package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
)

// GoogleKeysURL publishes the keys that sign Firebase ID tokens.
const GoogleKeysURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

const maxKeySetBytes = 1 << 20

// keyFetchBackoff is how long a failed fetch is replayed before the next attempt.
const keyFetchBackoff = 5 * time.Second

// ErrKeysFetchFailed is returned when the signing keys cannot be retrieved
var ErrKeysFetchFailed = errors.New("failed to fetch signing keys")

// keySource fetches the signing key set and caches it for as long as the
// response's Cache-Control max-age allows. A failed fetch is remembered for
// keyFetchBackoff so an outage does not turn every request into a fetch.
type keySource struct {
	url         string
	httpClient  *http.Client
	fallbackTTL time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	keys    keyfunc.Keyfunc
	expiry  time.Time
	failErr error
	retryAt time.Time
}

func newKeySource(url string, httpClient *http.Client, fallbackTTL time.Duration, now func() time.Time) *keySource {
	return &keySource{
		url:         url,
		httpClient:  httpClient,
		fallbackTTL: fallbackTTL,
		now:         now,
	}
}

// get returns the cached key set, refreshing it when expired.
func (s *keySource) get(ctx context.Context) (keyfunc.Keyfunc, error) {
	s.mu.RLock()
	if s.keys != nil && s.now().Before(s.expiry) {
		keys := s.keys
		s.mu.RUnlock()
		return keys, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have refreshed while we waited.
	if s.keys != nil && s.now().Before(s.expiry) {
		return s.keys, nil
	}

	if s.failErr != nil && s.now().Before(s.retryAt) {
		return nil, s.failErr
	}

	keys, ttl, err := s.fetch(ctx)
	if err != nil {
		// A caller giving up is not an outage.
		if ctx.Err() == nil {
			s.failErr = err
			s.retryAt = s.now().Add(keyFetchBackoff)
		}
		return nil, err
	}
	s.keys = keys
	s.expiry = s.now().Add(ttl)
	s.failErr = nil
	return keys, nil
}

func (s *keySource) fetch(ctx context.Context) (keyfunc.Keyfunc, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeysFetchFailed, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeysFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: status code %d", ErrKeysFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeysFetchFailed, err)
	}

	keys, err := keyfunc.NewJWKSetJSON(json.RawMessage(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode key set: %v", ErrKeysFetchFailed, err)
	}

	return keys, cacheTTL(resp.Header.Get("Cache-Control"), s.fallbackTTL), nil
}

// cacheTTL extracts max-age from a Cache-Control header.
func cacheTTL(header string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		value, ok := strings.CutPrefix(directive, "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
