// Package pages holds the content model shared by every backend: the
// owner/page/branch addressing tuple, asset metadata, and the error
// types backends are allowed to return.
//
// Pages are read-only projections of forge-owned repositories. To read
// content you go Location -> Backend -> Asset.
package pages

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultName is the reserved name used for both the page and the
// branch when the corresponding URL segment is absent.
const DefaultName = "pages"

// Location identifies one branch of one page. It is the addressing
// tuple every backend operation is keyed by.
type Location struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Branch string `json:"branch"`
}

func (l Location) String() string {
	return l.Owner + "/" + l.Name + "@" + l.Branch
}

// WithDefaults fills empty name and branch with DefaultName.
func (l Location) WithDefaults() Location {
	if l.Name == "" {
		l.Name = DefaultName
	}
	if l.Branch == "" {
		l.Branch = DefaultName
	}
	return l
}

// AssetMeta describes a servable file without its body.
type AssetMeta struct {
	Path         string    `json:"path"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"last_modified"`
}

// Asset is a servable file: metadata plus the full body.
type Asset struct {
	Meta AssetMeta `json:"meta"`
	Body []byte    `json:"body"`
}

// HashBytes returns the hex sha256 digest used as an asset content hash.
func HashBytes(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// DetectContentType resolves an asset's content type from its file
// extension, falling back to content sniffing for extensionless or
// unknown files.
func DetectContentType(assetPath string, body []byte) string {
	if ext := path.Ext(assetPath); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return mimetype.Detect(body).String()
}
