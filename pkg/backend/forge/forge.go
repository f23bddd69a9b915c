// Package forge implements the backend contract against a
// Forgejo-compatible forge (Forgejo, Gitea, Codeberg) using its raw
// content and branch listing HTTP APIs. Forge-specific failures are
// mapped to the contract taxonomy and never leak past this package:
// HTTP 404 becomes pages.NotFoundError, transport failures and 5xx
// become pages.UpstreamError, and an oversized Content-Length becomes
// pages.TooLargeError without downloading the body.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pageserve/pkg/log"
	"pageserve/pkg/pages"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultMaxAssetSize   = 8 << 20 // 8 MiB
	defaultRequestTimeout = 30 * time.Second
	defaultRetryMax       = 2
	// Branch listings are only memoized for one cache refresh cycle;
	// long-term caching belongs to the cache decorator.
	branchMemoTTL = 30 * time.Second
)

// Config holds the connection settings for a forge backend.
type Config struct {
	// URL is the forge base URL, e.g. https://codeberg.org.
	URL string
	// Token is an optional API token sent on every request.
	Token string
	// MaxAssetSize is the fetch size ceiling in bytes. Zero means the
	// default of 8 MiB.
	MaxAssetSize int64
	// AllowedBranches restricts which branches are servable. Empty
	// means all branches.
	AllowedBranches []string
	// RequestTimeout bounds every forge call. Zero means 30s.
	RequestTimeout time.Duration
	// RetryMax is the transport-level retry count. Zero means 2.
	RetryMax int
}

// Backend serves page content straight from a forge's HTTP API.
type Backend struct {
	baseURL         string
	token           string
	maxAssetSize    int64
	allowedBranches map[string]struct{}
	client          *retryablehttp.Client

	branchMemo *branchMemo
}

// New creates a forge backend from the given configuration.
func New(cfg Config) *Backend {
	if cfg.MaxAssetSize <= 0 {
		cfg.MaxAssetSize = defaultMaxAssetSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = defaultRetryMax
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedBranches) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedBranches))
		for _, branch := range cfg.AllowedBranches {
			allowed[branch] = struct{}{}
		}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = cfg.RequestTimeout
	client.Logger = nil // Disable retryablehttp logging
	// Only retry on connection/timeout errors. HTTP error responses
	// carry meaning (404 vs 5xx) and are mapped by the caller instead.
	client.CheckRetry = transportRetryPolicy

	return &Backend{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		token:           cfg.Token,
		maxAssetSize:    cfg.MaxAssetSize,
		allowedBranches: allowed,
		client:          client,
		branchMemo:      newBranchMemo(branchMemoTTL),
	}
}

// transportRetryPolicy only retries when no response was received at
// all. Responses, including 4xx and 5xx, are returned as-is so the
// backend can map them to contract errors.
func transportRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error itself
	}
	return false, nil
}

type branchInfo struct {
	Name string `json:"name"`
}

// ListBranches queries the forge's branch listing API.
func (b *Backend) ListBranches(ctx context.Context, owner, name string) ([]string, error) {
	loc := pages.Location{Owner: owner, Name: name}

	if branches, ok := b.branchMemo.get(owner, name); ok {
		return branches, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/repos/%s/%s/branches", b.baseURL, url.PathEscape(owner), url.PathEscape(name))
	resp, err := b.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, pages.UpstreamError{Location: loc, Err: err}
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case isNotFoundStatus(resp.StatusCode):
		return nil, pages.NotFoundError{Location: loc}
	default:
		return nil, pages.UpstreamError{Location: loc, Err: statusError(resp.StatusCode)}
	}

	var infos []branchInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, pages.UpstreamError{Location: loc, Err: err}
	}

	branches := make([]string, 0, len(infos))
	for _, info := range infos {
		if b.branchAllowed(info.Name) {
			branches = append(branches, info.Name)
		}
	}
	b.branchMemo.put(owner, name, branches)
	return branches, nil
}

// StatAsset issues a HEAD request against the raw content URL.
func (b *Backend) StatAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.AssetMeta, error) {
	cleaned, err := pages.CleanAssetPath(assetPath)
	if err != nil {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	if !b.branchAllowed(loc.Branch) {
		return nil, pages.NotFoundError{Location: loc, Path: cleaned}
	}

	resp, err := b.do(ctx, http.MethodHead, b.rawURL(loc, cleaned))
	if err != nil {
		return nil, pages.UpstreamError{Location: loc, Err: err}
	}
	defer closeBody(resp)

	if err := b.checkAssetResponse(resp, loc, cleaned); err != nil {
		return nil, err
	}

	meta := metaFromResponse(resp, cleaned)
	return &meta, nil
}

// FetchAsset downloads the asset body from the raw content URL.
func (b *Backend) FetchAsset(ctx context.Context, loc pages.Location, assetPath string) (*pages.Asset, error) {
	cleaned, err := pages.CleanAssetPath(assetPath)
	if err != nil {
		return nil, pages.NotFoundError{Location: loc, Path: assetPath}
	}
	if !b.branchAllowed(loc.Branch) {
		return nil, pages.NotFoundError{Location: loc, Path: cleaned}
	}

	resp, err := b.do(ctx, http.MethodGet, b.rawURL(loc, cleaned))
	if err != nil {
		return nil, pages.UpstreamError{Location: loc, Err: err}
	}
	defer closeBody(resp)

	if err := b.checkAssetResponse(resp, loc, cleaned); err != nil {
		return nil, err
	}

	// The ceiling was already checked against Content-Length, but
	// chunked responses carry no length, so bound the read as well.
	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxAssetSize+1))
	if err != nil {
		return nil, pages.UpstreamError{Location: loc, Err: err}
	}
	if int64(len(body)) > b.maxAssetSize {
		return nil, pages.TooLargeError{Location: loc, Path: cleaned, Size: int64(len(body)), Limit: b.maxAssetSize}
	}

	meta := metaFromResponse(resp, cleaned)
	meta.Size = int64(len(body))
	meta.Hash = pages.HashBytes(body)
	if meta.ContentType == "" || meta.ContentType == "application/octet-stream" {
		meta.ContentType = pages.DetectContentType(cleaned, body)
	}

	return &pages.Asset{Meta: meta, Body: body}, nil
}

// checkAssetResponse maps an asset response status and announced size
// to a contract error, or nil when the response is servable.
func (b *Backend) checkAssetResponse(resp *http.Response, loc pages.Location, cleaned string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
	case isNotFoundStatus(resp.StatusCode):
		return pages.NotFoundError{Location: loc, Path: cleaned}
	default:
		return pages.UpstreamError{Location: loc, Err: statusError(resp.StatusCode)}
	}

	if resp.ContentLength > b.maxAssetSize {
		return pages.TooLargeError{Location: loc, Path: cleaned, Size: resp.ContentLength, Limit: b.maxAssetSize}
	}
	return nil
}

func (b *Backend) branchAllowed(branch string) bool {
	if b.allowedBranches == nil {
		return true
	}
	_, ok := b.allowedBranches[branch]
	return ok
}

func (b *Backend) rawURL(loc pages.Location, cleaned string) string {
	segments := strings.Split(cleaned, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s/raw/branch/%s/%s",
		b.baseURL,
		url.PathEscape(loc.Owner),
		url.PathEscape(loc.Name),
		url.PathEscape(loc.Branch),
		strings.Join(segments, "/"))
}

func (b *Backend) do(ctx context.Context, method, endpoint string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "token "+b.token)
	}
	return b.client.Do(req)
}

func metaFromResponse(resp *http.Response, cleaned string) pages.AssetMeta {
	meta := pages.AssetMeta{
		Path:        cleaned,
		ContentType: contentTypeFromHeader(resp.Header.Get("Content-Type")),
		Size:        resp.ContentLength,
		Hash:        strings.Trim(strings.TrimPrefix(resp.Header.Get("ETag"), "W/"), `"`),
	}
	if modified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		meta.LastModified = modified
	}
	return meta
}

func contentTypeFromHeader(value string) string {
	mediaType, _, _ := strings.Cut(value, ";")
	return strings.TrimSpace(mediaType)
}

func isNotFoundStatus(status int) bool {
	// Unauthorized and forbidden mean a private or missing repository;
	// both look identical to an anonymous client.
	return status == http.StatusNotFound ||
		status == http.StatusUnauthorized ||
		status == http.StatusForbidden
}

func statusError(status int) error {
	return fmt.Errorf("forge returned status %d %s", status, http.StatusText(status))
}

func closeBody(resp *http.Response) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)); err != nil {
		log.Debug().Err(err).Msg("Failed to drain response body")
	}
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close forge response body")
	}
}
