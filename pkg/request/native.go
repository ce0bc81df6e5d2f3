// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"maps"
	"net/http"
	"net/url"
	"sync"
)

type attributes struct {
	mu sync.RWMutex
	m  map[string]any
}

func (a *attributes) set(key string, v any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.m == nil {
		a.m = make(map[string]any)
	}
	a.m[key] = v
}

func (a *attributes) get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.m[key]
	return v, ok
}

func (a *attributes) snapshot() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.m)
}

// NativeRequest is a request served on the blocking stack.
type NativeRequest struct {
	r     *http.Request
	attrs attributes

	parseOnce sync.Once
	parseErr  error
}

// NewNative wraps r.
func NewNative(r *http.Request) *NativeRequest {
	return &NativeRequest{r: r}
}

func (n *NativeRequest) Method() string      { return n.r.Method }
func (n *NativeRequest) URL() *url.URL       { return n.r.URL }
func (n *NativeRequest) Header() http.Header { return n.r.Header }

// Raw returns the wrapped request.
func (n *NativeRequest) Raw() *http.Request { return n.r }

// Param returns the first value of a parameter, from the query string or
// the form body.
func (n *NativeRequest) Param(name string) (string, bool) {
	form, err := n.form()
	if err != nil {
		return "", false
	}
	vs, ok := form[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// SetAttribute stores a request attribute.
func (n *NativeRequest) SetAttribute(key string, v any) { n.attrs.set(key, v) }

// Attribute returns a request attribute.
func (n *NativeRequest) Attribute(key string) (any, bool) { return n.attrs.get(key) }

func (n *NativeRequest) form() (url.Values, error) {
	n.parseOnce.Do(func() {
		n.parseErr = n.r.ParseForm()
	})
	if n.parseErr != nil {
		return nil, n.parseErr
	}
	return n.r.Form, nil
}
