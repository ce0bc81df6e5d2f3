// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package request gives code below the filters access to the request being
// served, on either stack, without the request being passed as an argument.
//
// The blocking stack serves a NativeRequest on the goroutine that accepted
// it. The asynchronous stack serves an Exchange whose request is seen through
// a ProxiedRequest. Both are bound to the Handle slot by the filters.
package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"
)

var (
	// ErrNoRequestBound is returned by Current outside of a request.
	ErrNoRequestBound = fmt.Errorf("request: no request bound: %w", scope.ErrUnscoped)

	// ErrUnsupportedRequest is returned for HTTPRequest implementations this
	// package does not know.
	ErrUnsupportedRequest = errors.New("request: unsupported request type")
)

// HTTPRequest is the view of a request common to both stacks.
type HTTPRequest interface {
	Method() string
	URL() *url.URL
	Header() http.Header
}

// Handle holds the request of the current scope. It never owns the request:
// clearing it does not affect the request itself.
var Handle = scope.NewSlot[HTTPRequest]("request-holder")

// Current returns the request bound to the scope carried by ctx.
func Current(ctx context.Context) (HTTPRequest, error) {
	r, ok := Handle.Get(scope.FromContext(ctx))
	if !ok || r == nil {
		return nil, ErrNoRequestBound
	}
	return r, nil
}

// Parameters returns the request parameters. A NativeRequest includes
// parsed form body values; a ProxiedRequest only has the query string.
func Parameters(r HTTPRequest) (url.Values, error) {
	switch r := r.(type) {
	case *NativeRequest:
		return r.form()
	case *ProxiedRequest:
		return r.URL().Query(), nil
	default:
		return nil, unsupported(r)
	}
}

// Attributes returns the attributes of a NativeRequest, or of the exchange
// behind a ProxiedRequest, rendered as strings.
func Attributes(r HTTPRequest) (map[string]string, error) {
	switch r := r.(type) {
	case *NativeRequest:
		return stringify(r.attrs.snapshot()), nil
	case *ProxiedRequest:
		return stringify(r.ex.attrs.snapshot()), nil
	default:
		return nil, unsupported(r)
	}
}

// Cookies returns the request cookies. A request without cookies yields an
// empty slice.
func Cookies(r HTTPRequest) ([]*http.Cookie, error) {
	var raw *http.Request
	switch r := r.(type) {
	case *NativeRequest:
		raw = r.r
	case *ProxiedRequest:
		raw = r.ex.r
	default:
		return nil, unsupported(r)
	}
	cookies := raw.Cookies()
	if cookies == nil {
		cookies = []*http.Cookie{}
	}
	return cookies, nil
}

func unsupported(r HTTPRequest) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedRequest, r)
}

func stringify(attrs map[string]any) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = fmt.Sprint(v)
	}
	return out
}
