package cache

import (
	"encoding/json"

	"pageserve/pkg/pages"
)

const (
	kindStat  = "stat"
	kindFetch = "fetch"
)

// entry is the stored form of one cache outcome. NotFound entries
// remember that the upstream answered not-found so persistently absent
// assets do not hammer the backend.
type entry struct {
	NotFound bool             `json:"not_found,omitempty"`
	Branches []string         `json:"branches,omitempty"`
	Meta     *pages.AssetMeta `json:"meta,omitempty"`
	Body     []byte           `json:"body,omitempty"`
}

func encodeEntry(e entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(raw []byte) (entry, error) {
	var e entry
	err := json.Unmarshal(raw, &e)
	return e, err
}

// Key layout: "page:{owner}/{name}@{branch}:{kind}:{path}" so a prefix
// purge covers exactly one branch tuple. Branch listings are keyed per
// page, outside any branch prefix.

func locationPrefix(loc pages.Location) string {
	return "page:" + loc.String() + ":"
}

func assetKey(loc pages.Location, kind, assetPath string) string {
	return locationPrefix(loc) + kind + ":" + assetPath
}

func branchesKey(owner, name string) string {
	return "branches:" + owner + "/" + name
}
