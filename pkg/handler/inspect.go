// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler holds request handlers that reach the current request and
// diagnostic context through the scope rather than through arguments, so
// the same code serves the blocking and the asynchronous stack.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/request"
)

// Cookie is the name and value of a request cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Inspection is everything Inspect extracts from the current request.
type Inspection struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Parameters url.Values        `json:"parameters"`
	Headers    http.Header       `json:"headers"`
	Cookies    []Cookie          `json:"cookies"`
	Attributes map[string]string `json:"attributes"`
}

// Inspect describes the request bound to the scope carried by ctx.
func Inspect(ctx context.Context) (*Inspection, error) {
	req, err := request.Current(ctx)
	if err != nil {
		return nil, err
	}

	params, err := request.Parameters(req)
	if err != nil {
		return nil, fmt.Errorf("inspect parameters: %w", err)
	}
	attrs, err := request.Attributes(req)
	if err != nil {
		return nil, fmt.Errorf("inspect attributes: %w", err)
	}
	raw, err := request.Cookies(req)
	if err != nil {
		return nil, fmt.Errorf("inspect cookies: %w", err)
	}

	cookies := make([]Cookie, len(raw))
	for i, c := range raw {
		cookies[i] = Cookie{Name: c.Name, Value: c.Value}
	}
	return &Inspection{
		Method:     req.Method(),
		Path:       req.URL().Path,
		Parameters: params,
		Headers:    req.Header().Clone(),
		Cookies:    cookies,
		Attributes: attrs,
	}, nil
}
