package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mcdev12/arenanotify/go/internal/ingress"
)

type apiResponse struct {
	Status int
	Body   map[string]any
}

// post sends body to path, signing it when secret is non-empty.
func post(ctx context.Context, opts *rootOptions, path string, body []byte, secret string) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(opts.url, path), bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(ingress.SignatureHeader, ingress.Sign([]byte(secret), body))
	}
	return do(req)
}

func get(ctx context.Context, opts *rootOptions, path string) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(opts.url, path), nil)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	return do(req)
}

func do(req *http.Request) (apiResponse, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response: %w", err)
	}
	out := apiResponse{Status: resp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			out.Body = map[string]any{"raw": string(raw)}
		}
	}
	if resp.StatusCode >= 300 {
		msg, _ := out.Body["error"].(string)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return out, fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	return out, nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
