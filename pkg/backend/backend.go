// Package backend defines the capability contract every content source
// implements: list the branches of a page, stat an asset, fetch an
// asset. Concrete sources (memory, forge) and the caching decorator
// all satisfy the same interface so they can be layered and swapped
// freely.
package backend

import (
	"context"

	"pageserve/pkg/pages"
)

// Backend is the read-only content source contract.
//
// All operations are pure reads keyed by the (owner, page, branch)
// tuple. Failures are reported through the typed errors in pkg/pages:
// pages.NotFoundError for absent content, pages.UpstreamError for
// transient source failures, pages.TooLargeError for size-policy
// rejections. No other error kinds may cross this boundary.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// ListBranches returns the branch names of a page in a stable order.
	ListBranches(ctx context.Context, owner, name string) ([]string, error)

	// StatAsset returns asset metadata without transferring the body.
	StatAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.AssetMeta, error)

	// FetchAsset returns the asset body together with its metadata.
	FetchAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.Asset, error)
}

// Invalidator is implemented by backends that hold derived state which
// can go stale, i.e. the caching decorator. An empty assetPath drops
// everything cached under the location.
type Invalidator interface {
	Invalidate(ctx context.Context, loc pages.Location, assetPath string) error
}
