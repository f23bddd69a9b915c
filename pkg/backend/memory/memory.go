// Package memory implements the backend contract over a fixed
// in-process mapping. It exists to make the resolver, cache decorator
// and front-end fully testable without network access, so it must
// reproduce the contract's error taxonomy exactly: absence is always
// pages.NotFoundError, never an upstream failure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pageserve/pkg/pages"
)

type storedAsset struct {
	body []byte
	meta pages.AssetMeta
}

// Backend holds page content in memory, keyed by location and asset path.
type Backend struct {
	mu    sync.RWMutex
	sites map[pages.Location]map[string]storedAsset
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		sites: make(map[pages.Location]map[string]storedAsset),
	}
}

// Put stores an asset body under the given location and path,
// computing its metadata. Existing content at the path is replaced.
func (b *Backend) Put(loc pages.Location, assetPath string, body []byte) {
	cleaned, err := pages.CleanAssetPath(assetPath)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	site, ok := b.sites[loc]
	if !ok {
		site = make(map[string]storedAsset)
		b.sites[loc] = site
	}
	site[cleaned] = storedAsset{
		body: body,
		meta: pages.AssetMeta{
			Path:         cleaned,
			ContentType:  pages.DetectContentType(cleaned, body),
			Size:         int64(len(body)),
			Hash:         pages.HashBytes(body),
			LastModified: time.Now().UTC().Truncate(time.Second),
		},
	}
}

// ListBranches returns the branch names stored for the given page,
// sorted for a stable order.
func (b *Backend) ListBranches(ctx context.Context, owner, name string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var branches []string
	for loc := range b.sites {
		if loc.Owner == owner && loc.Name == name {
			branches = append(branches, loc.Branch)
		}
	}
	if len(branches) == 0 {
		return nil, pages.NotFoundError{Location: pages.Location{Owner: owner, Name: name}}
	}
	sort.Strings(branches)
	return branches, nil
}

// StatAsset returns asset metadata without the body.
func (b *Backend) StatAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.AssetMeta, error) {
	stored, err := b.lookup(loc, assetPath)
	if err != nil {
		return nil, err
	}
	meta := stored.meta
	return &meta, nil
}

// FetchAsset returns the asset body and metadata.
func (b *Backend) FetchAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.Asset, error) {
	stored, err := b.lookup(loc, assetPath)
	if err != nil {
		return nil, err
	}
	body := make([]byte, len(stored.body))
	copy(body, stored.body)
	return &pages.Asset{Meta: stored.meta, Body: body}, nil
}

func (b *Backend) lookup(loc pages.Location, assetPath string) (storedAsset, error) {
	cleaned, err := pages.CleanAssetPath(assetPath)
	if err != nil {
		return storedAsset{}, pages.NotFoundError{Location: loc, Path: assetPath}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	site, ok := b.sites[loc]
	if !ok {
		return storedAsset{}, pages.NotFoundError{Location: loc, Path: cleaned}
	}
	stored, ok := site[cleaned]
	if !ok {
		return storedAsset{}, pages.NotFoundError{Location: loc, Path: cleaned}
	}
	return stored, nil
}
