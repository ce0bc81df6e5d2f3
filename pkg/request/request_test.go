// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package request_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/scope"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct{}

func (fakeRequest) Method() string      { return http.MethodGet }
func (fakeRequest) URL() *url.URL       { return &url.URL{Path: "/"} }
func (fakeRequest) Header() http.Header { return http.Header{} }

func newFormRequest() *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/inspect?rid=abc123", strings.NewReader("user=alice"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})
	return r
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	_, err := request.Current(context.Background())
	assert.ErrorIs(t, err, request.ErrNoRequestBound)
	assert.ErrorIs(t, err, scope.ErrUnscoped)

	sc := scope.New()
	ctx := scope.NewContext(context.Background(), sc)
	_, err = request.Current(ctx)
	assert.ErrorIs(t, err, request.ErrNoRequestBound)

	req := request.NewNative(newFormRequest())
	request.Handle.Set(sc, req)
	got, err := request.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, req, got)

	request.Handle.Clear(sc)
	_, err = request.Current(ctx)
	assert.ErrorIs(t, err, request.ErrNoRequestBound)
}

func TestParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  request.HTTPRequest
		want url.Values
	}{
		{
			name: "native includes form body",
			req:  request.NewNative(newFormRequest()),
			want: url.Values{"rid": {"abc123"}, "user": {"alice"}},
		},
		{
			name: "proxied is query only",
			req:  request.NewExchange(newFormRequest()).Request(),
			want: url.Values{"rid": {"abc123"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := request.Parameters(tt.req)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parameters mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAttributes(t *testing.T) {
	t.Parallel()

	native := request.NewNative(newFormRequest())
	native.SetAttribute("route", "/inspect")
	native.SetAttribute("attempt", 2)
	got, err := request.Attributes(native)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"route": "/inspect", "attempt": "2"}, got)

	ex := request.NewExchange(newFormRequest())
	ex.SetAttribute("route", "/inspect")
	got, err = request.Attributes(ex.Request())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"route": "/inspect"}, got)

	v, ok := ex.Attribute("route")
	assert.True(t, ok)
	assert.Equal(t, "/inspect", v)
	assert.Len(t, ex.Attributes(), 1)
}

func TestCookies(t *testing.T) {
	t.Parallel()

	for _, req := range []request.HTTPRequest{
		request.NewNative(newFormRequest()),
		request.NewExchange(newFormRequest()).Request(),
	} {
		cookies, err := request.Cookies(req)
		require.NoError(t, err)
		require.Len(t, cookies, 1)
		assert.Equal(t, "session", cookies[0].Name)
		assert.Equal(t, "s1", cookies[0].Value)
	}

	bare := request.NewNative(httptest.NewRequest(http.MethodGet, "/", nil))
	cookies, err := request.Cookies(bare)
	require.NoError(t, err)
	assert.NotNil(t, cookies)
	assert.Empty(t, cookies)
}

func TestUnsupportedRequest(t *testing.T) {
	t.Parallel()

	var r request.HTTPRequest = fakeRequest{}

	_, err := request.Parameters(r)
	assert.ErrorIs(t, err, request.ErrUnsupportedRequest)
	assert.Contains(t, err.Error(), "request_test.fakeRequest")

	_, err = request.Attributes(r)
	assert.ErrorIs(t, err, request.ErrUnsupportedRequest)

	_, err = request.Cookies(r)
	assert.ErrorIs(t, err, request.ErrUnsupportedRequest)
}

func TestExchange_RequestView(t *testing.T) {
	t.Parallel()

	ex := request.NewExchange(newFormRequest())
	p := ex.Request()
	assert.Same(t, p, ex.Request())
	assert.Same(t, ex, p.Exchange())
	assert.Equal(t, http.MethodPost, p.Method())
	assert.Equal(t, "/inspect", p.URL().Path)

	rid, ok := ex.QueryParam("rid")
	assert.True(t, ok)
	assert.Equal(t, "abc123", rid)
	_, ok = ex.QueryParam("user")
	assert.False(t, ok)
}

func TestNativeRequest_Param(t *testing.T) {
	t.Parallel()

	n := request.NewNative(newFormRequest())
	v, ok := n.Param("user")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
	_, ok = n.Param("missing")
	assert.False(t, ok)
}
