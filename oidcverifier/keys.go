package oidcverifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// fetchTransport marks network failures and non-2xx answers from the
// issuer with ErrKeysFetchFailed so they survive go-oidc's error wrapping.
type fetchTransport struct {
	base http.RoundTripper
}

func (t *fetchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeysFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrKeysFetchFailed, req.URL.Path, resp.Status)
	}
	return resp, nil
}

type fetchFailureKey struct{}

// fetchFailure collects a key fetch failure for a single Verify call.
// go-oidc flattens the key set error into text before returning it.
type fetchFailure struct {
	err error
}

// trackingKeySet records fetch failures of the wrapped key set on the
// caller's fetchFailure.
type trackingKeySet struct {
	next oidc.KeySet
}

func (k *trackingKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.next.VerifySignature(ctx, jwt)
	if err != nil && isFetchFailure(err) {
		if f, ok := ctx.Value(fetchFailureKey{}).(*fetchFailure); ok {
			f.err = err
		}
	}
	return payload, err
}

func isFetchFailure(err error) bool {
	return errors.Is(err, ErrKeysFetchFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
