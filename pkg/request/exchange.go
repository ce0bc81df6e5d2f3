// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"net/http"
	"net/url"
)

// Exchange is one request/response interaction on the asynchronous stack.
// Attributes belong to the exchange, not to the request.
type Exchange struct {
	r     *http.Request
	req   *ProxiedRequest
	attrs attributes
}

func NewExchange(r *http.Request) *Exchange {
	ex := &Exchange{r: r}
	ex.req = &ProxiedRequest{ex: ex}
	return ex
}

// Request returns the request view of the exchange. It is the same value on
// every call.
func (ex *Exchange) Request() *ProxiedRequest { return ex.req }

// Attributes returns a copy of the exchange attributes.
func (ex *Exchange) Attributes() map[string]any { return ex.attrs.snapshot() }

func (ex *Exchange) SetAttribute(key string, v any) { ex.attrs.set(key, v) }

func (ex *Exchange) Attribute(key string) (any, bool) { return ex.attrs.get(key) }

// QueryParam returns the first value of a query parameter.
func (ex *Exchange) QueryParam(name string) (string, bool) {
	vs, ok := ex.r.URL.Query()[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// ProxiedRequest is the request of an Exchange.
type ProxiedRequest struct {
	ex *Exchange
}

func (p *ProxiedRequest) Method() string      { return p.ex.r.Method }
func (p *ProxiedRequest) URL() *url.URL       { return p.ex.r.URL }
func (p *ProxiedRequest) Header() http.Header { return p.ex.r.Header }

// Exchange returns the exchange p belongs to.
func (p *ProxiedRequest) Exchange() *Exchange { return p.ex }
