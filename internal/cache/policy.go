// Package cache implements the installable offline cache: a fetch
// interceptor with cache-first and network-only rules over a versioned
// store of responses. The dynamic API surface is never served stale; shell
// assets and incidental GET responses keep working offline.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/ports"
	"github.com/vykazy/timesheet-client/internal/metrics"
	"github.com/vykazy/timesheet-client/internal/transport/rest"
)

// OfflinePagePath is the shell asset replayed when a navigation cannot reach
// the network.
const OfflinePagePath = "/offline.html"

// PrecacheManifest lists the shell assets stored during Install.
var PrecacheManifest = []string{
	"/",
	OfflinePagePath,
	"/manifest.webmanifest",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

// BypassPrefixes are the API path prefixes that must always reach the
// network. Responses under these prefixes are dynamic and never cached.
var BypassPrefixes = []string{
	"/api/reports",
	"/api/users",
	"/api/auth",
	"/api/clients",
	"/api/tasks",
	"/api/exports",
	"/sanctum/csrf-cookie",
}

// Policy intercepts fetches for one cache generation. It satisfies
// rest.Fetcher so it can sit between the REST client and the network.
type Policy struct {
	store      ports.CacheStore
	upstream   rest.Fetcher
	generation string
	origin     string
	// installed flips once Install has stored the precache manifest.
	// Until then Fetch never serves from or writes to the store.
	installed bool
	log       zerolog.Logger
}

// NewPolicy creates a Policy for the given generation. origin is the base
// URL precache manifest paths are resolved against.
func NewPolicy(store ports.CacheStore, upstream rest.Fetcher, generation, origin string, log zerolog.Logger) *Policy {
	return &Policy{
		store:      store,
		upstream:   upstream,
		generation: generation,
		origin:     strings.TrimRight(origin, "/"),
		log:        log,
	}
}

// cacheKey identifies one request within a generation.
func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

// Install populates the current generation with the precache manifest. The
// policy is not ready until Install has completed without error.
func (p *Policy) Install(ctx context.Context) error {
	for _, path := range PrecacheManifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.origin+path, nil)
		if err != nil {
			return fmt.Errorf("cache install: %w", err)
		}
		res, err := p.upstream.Fetch(ctx, req)
		if err != nil {
			return fmt.Errorf("cache install %s: %w", path, err)
		}
		cached, err := drain(res)
		if err != nil {
			return fmt.Errorf("cache install %s: %w", path, err)
		}
		if cached.Status < 200 || cached.Status > 299 {
			return fmt.Errorf("cache install %s: status %d", path, cached.Status)
		}
		if err := p.store.Put(ctx, p.generation, cacheKey(req), cached); err != nil {
			return err
		}
	}
	p.installed = true
	p.log.Info().Str("generation", p.generation).Int("assets", len(PrecacheManifest)).Msg("offline cache installed")
	return nil
}

// Activate purges every generation other than the current one, then the
// policy takes over interception immediately.
func (p *Policy) Activate(ctx context.Context) error {
	generations, err := p.store.Generations(ctx)
	if err != nil {
		return err
	}
	for _, g := range generations {
		if g == p.generation {
			continue
		}
		if err := p.store.DeleteGeneration(ctx, g); err != nil {
			return err
		}
		p.log.Info().Str("generation", g).Msg("stale cache generation purged")
	}
	return nil
}

// Fetch applies the interception rules to one request. Until Install has
// completed the policy is not ready and every request goes straight to the
// network.
func (p *Policy) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !p.installed {
		metrics.CacheDecisionsTotal.WithLabelValues("passthrough").Inc()
		return p.upstream.Fetch(ctx, req)
	}

	// Non-HTTP schemes are none of our business.
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		metrics.CacheDecisionsTotal.WithLabelValues("passthrough").Inc()
		return p.upstream.Fetch(ctx, req)
	}

	if isNavigation(req) {
		res, err := p.upstream.Fetch(ctx, req)
		if err == nil {
			return res, nil
		}
		fallback, ok, matchErr := p.store.Match(ctx, p.generation, "GET "+p.origin+OfflinePagePath)
		if matchErr == nil && ok {
			metrics.CacheDecisionsTotal.WithLabelValues("offline").Inc()
			return replay(req, fallback), nil
		}
		return nil, err
	}

	// Writes always reach the network.
	if req.Method != http.MethodGet {
		metrics.CacheDecisionsTotal.WithLabelValues("passthrough").Inc()
		return p.upstream.Fetch(ctx, req)
	}

	for _, prefix := range BypassPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			metrics.CacheDecisionsTotal.WithLabelValues("bypass").Inc()
			return p.upstream.Fetch(ctx, req)
		}
	}

	key := cacheKey(req)
	if cached, ok, err := p.store.Match(ctx, p.generation, key); err == nil && ok {
		metrics.CacheDecisionsTotal.WithLabelValues("hit").Inc()
		return replay(req, cached), nil
	}

	res, err := p.upstream.Fetch(ctx, req)
	if err != nil {
		metrics.CacheDecisionsTotal.WithLabelValues("offline").Inc()
		return offlineResponse(req), nil
	}

	metrics.CacheDecisionsTotal.WithLabelValues("miss").Inc()
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		cached, drainErr := drain(res)
		if drainErr != nil {
			return nil, drainErr
		}
		if err := p.store.Put(ctx, p.generation, key, cached); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("cache store failed")
		}
		return replay(req, cached), nil
	}
	return res, nil
}

// isNavigation reports whether the request is a page navigation.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// drain consumes a response body into a storable entry.
func drain(res *http.Response) (*ports.CachedResponse, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("cache: read response: %w", err)
	}
	return &ports.CachedResponse{
		Status: res.StatusCode,
		Header: res.Header.Clone(),
		Body:   body,
	}, nil
}

// replay rebuilds an http.Response from a stored entry.
func replay(req *http.Request, cached *ports.CachedResponse) *http.Response {
	return &http.Response{
		StatusCode:    cached.Status,
		Status:        http.StatusText(cached.Status),
		Header:        cached.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}

// offlineResponse is the synthesized reply for a total network failure with
// no cached entry.
func offlineResponse(req *http.Request) *http.Response {
	body := []byte("offline")
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        http.StatusText(http.StatusServiceUnavailable),
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
