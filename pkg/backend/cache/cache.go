// Package cache implements the backend contract as a decorator over
// another backend. Successful results and not-found outcomes are kept
// in a pluggable key-value store with separate positive and negative
// lifetimes, concurrent misses for the same key are coalesced into one
// upstream call, and entries can be dropped early through Invalidate
// when a push notification reports upstream changes.
//
// The decorator fails open on store trouble: if the store cannot be
// read or written, the upstream backend is called directly and the
// store error is only logged. It never fails open the other way; an
// upstream failure is always surfaced to the caller.
package cache

import (
	"context"
	"errors"
	"time"

	"pageserve/pkg/backend"
	"pageserve/pkg/cachestore"
	"pageserve/pkg/log"
	"pageserve/pkg/pages"

	"golang.org/x/sync/singleflight"
)

const (
	defaultPositiveTTL = 5 * time.Minute
	defaultNegativeTTL = 30 * time.Second
	defaultRetryMax    = 2

	retryBackoff = 100 * time.Millisecond
)

// Options tunes the decorator. The positive/negative split is a
// deployment trade-off between staleness and upstream load, so both
// are exposed rather than hardcoded.
type Options struct {
	// PositiveTTL bounds the staleness of cached successes. Zero means 5m.
	PositiveTTL time.Duration
	// NegativeTTL bounds how long a not-found outcome is remembered.
	// Zero means 30s.
	NegativeTTL time.Duration
	// RetryMax is how many times a transient upstream failure is
	// retried before being surfaced. Zero means 2.
	RetryMax int
}

func (o Options) withDefaults() Options {
	if o.PositiveTTL <= 0 {
		o.PositiveTTL = defaultPositiveTTL
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = defaultNegativeTTL
	}
	if o.RetryMax <= 0 {
		o.RetryMax = defaultRetryMax
	}
	return o
}

// Backend is the caching decorator. It satisfies the same contract as
// the backend it wraps, so callers cannot tell the two apart.
type Backend struct {
	upstream backend.Backend
	store    cachestore.Store
	opts     Options
	group    singleflight.Group
	now      func() time.Time
}

// New wraps upstream with a cache over the given store.
func New(upstream backend.Backend, store cachestore.Store, opts Options) *Backend {
	return &Backend{
		upstream: upstream,
		store:    store,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// ListBranches serves the branch listing from cache when fresh.
func (b *Backend) ListBranches(ctx context.Context, owner, name string) ([]string, error) {
	key := branchesKey(owner, name)
	loc := pages.Location{Owner: owner, Name: name}

	if cached, ok := b.getEntry(ctx, key); ok {
		if cached.NotFound {
			return nil, pages.NotFoundError{Location: loc}
		}
		return cached.Branches, nil
	}

	result, err := b.coalesce(ctx, key, func(ctx context.Context) (entry, error) {
		branches, err := b.upstream.ListBranches(ctx, owner, name)
		if err != nil {
			return entry{}, err
		}
		return entry{Branches: branches}, nil
	})
	if err != nil {
		return nil, err
	}
	if result.NotFound {
		return nil, pages.NotFoundError{Location: loc}
	}
	return result.Branches, nil
}

// StatAsset serves asset metadata from cache when fresh.
func (b *Backend) StatAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.AssetMeta, error) {
	// Normalize before keying so "./index.html" and "index.html" share
	// one cache entry and Invalidate hits both.
	assetPath, pathErr := pages.CleanAssetPath(assetPath)
	if pathErr != nil {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	key := assetKey(loc, kindStat, assetPath)

	if cached, ok := b.getEntry(ctx, key); ok {
		if cached.NotFound {
			return nil, pages.NotFoundError{Location: loc, Path: assetPath}
		}
		meta := *cached.Meta
		return &meta, nil
	}

	result, err := b.coalesce(ctx, key, func(ctx context.Context) (entry, error) {
		meta, err := b.upstream.StatAsset(ctx, loc, assetPath)
		if err != nil {
			return entry{}, err
		}
		return entry{Meta: meta}, nil
	})
	if err != nil {
		return nil, err
	}
	if result.NotFound {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	meta := *result.Meta
	return &meta, nil
}

// FetchAsset serves asset bytes and metadata from cache when fresh.
func (b *Backend) FetchAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.Asset, error) {
	assetPath, pathErr := pages.CleanAssetPath(assetPath)
	if pathErr != nil {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	key := assetKey(loc, kindFetch, assetPath)

	if cached, ok := b.getEntry(ctx, key); ok {
		if cached.NotFound {
			return nil, pages.NotFoundError{Location: loc, Path: assetPath}
		}
		return &pages.Asset{Meta: *cached.Meta, Body: cached.Body}, nil
	}

	result, err := b.coalesce(ctx, key, func(ctx context.Context) (entry, error) {
		asset, err := b.upstream.FetchAsset(ctx, loc, assetPath)
		if err != nil {
			return entry{}, err
		}
		return entry{Meta: &asset.Meta, Body: asset.Body}, nil
	})
	if err != nil {
		return nil, err
	}
	if result.NotFound {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	return &pages.Asset{Meta: *result.Meta, Body: result.Body}, nil
}

// Invalidate drops cached entries for a location. An empty assetPath
// drops every entry under the location plus the page's branch listing.
// The purge completes before Invalidate returns, so reads started
// afterwards always go upstream; reads already in flight may still
// deliver the previous value.
func (b *Backend) Invalidate(ctx context.Context, loc pages.Location, assetPath string) error {
	if assetPath == "" {
		if err := b.store.PurgePrefix(ctx, locationPrefix(loc)); err != nil {
			return err
		}
		return b.store.Purge(ctx, branchesKey(loc.Owner, loc.Name))
	}

	cleaned, err := pages.CleanAssetPath(assetPath)
	if err != nil {
		return err
	}
	if err := b.store.Purge(ctx, assetKey(loc, kindStat, cleaned)); err != nil {
		return err
	}
	return b.store.Purge(ctx, assetKey(loc, kindFetch, cleaned))
}

// coalesce funnels concurrent misses for key into one upstream call
// and stores the outcome. The upstream call is detached from the
// caller's cancellation so one disconnecting client cannot starve the
// other coalesced waiters; the upstream's own timeout still bounds it.
func (b *Backend) coalesce(ctx context.Context, key string, load func(context.Context) (entry, error)) (entry, error) {
	detached := context.WithoutCancel(ctx)

	result, err, _ := b.group.Do(key, func() (any, error) {
		loaded, err := b.callUpstream(detached, load)

		var notFound pages.NotFoundError
		if errors.As(err, &notFound) {
			negative := entry{NotFound: true}
			b.putEntry(detached, key, negative, b.now().Add(b.opts.NegativeTTL))
			return negative, nil
		}
		if err != nil {
			return entry{}, err
		}

		b.putEntry(detached, key, loaded, b.now().Add(b.opts.PositiveTTL))
		return loaded, nil
	})
	if err != nil {
		return entry{}, err
	}
	return result.(entry), nil
}

// callUpstream retries transient upstream failures a bounded number of
// times. Terminal outcomes (not found, too large) are never retried.
func (b *Backend) callUpstream(ctx context.Context, load func(context.Context) (entry, error)) (entry, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return entry{}, lastErr
			case <-time.After(retryBackoff):
			}
		}

		loaded, err := load(ctx)
		if err == nil {
			return loaded, nil
		}
		lastErr = err

		var upstreamErr pages.UpstreamError
		if !errors.As(err, &upstreamErr) {
			return entry{}, err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("Transient upstream failure")
	}
	return entry{}, lastErr
}

func (b *Backend) getEntry(ctx context.Context, key string) (entry, bool) {
	raw, ok, err := b.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache store read failed, bypassing cache")
		return entry{}, false
	}
	if !ok {
		return entry{}, false
	}
	decoded, err := decodeEntry(raw)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		if purgeErr := b.store.Purge(ctx, key); purgeErr != nil {
			log.Warn().Err(purgeErr).Str("key", key).Msg("Failed to purge cache entry")
		}
		return entry{}, false
	}
	return decoded, true
}

func (b *Backend) putEntry(ctx context.Context, key string, e entry, expires time.Time) {
	raw, err := encodeEntry(e)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	if err := b.store.Put(ctx, key, expires, raw); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache store write failed")
	}
}
