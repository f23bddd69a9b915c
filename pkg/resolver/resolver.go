// Package resolver turns a request's host and path into a content
// location. Three URL shapes are supported, first match wins:
//
//  1. Custom domain: the host is an exact entry in the alias table and
//     maps straight to a configured location; the whole path is the
//     asset path.
//  2. Subdomain form: ((branch.)page).owner.<base-domain>, labels
//     assigned right to left with page and branch defaulting when
//     absent.
//  3. Subdirectory form: /owner/page(:branch)/asset-path on the base
//     domain itself. With exactly two segments the second one is the
//     asset path of the owner's default page.
//
// The resolver does no I/O; it is a pure function of the host, the
// path and the alias table it was built with.
package resolver

import (
	"fmt"
	"strings"

	"pageserve/pkg/pages"
)

// MalformedHostError reports a host that matches no resolution rule.
// It is a client input error, never a server fault.
type MalformedHostError struct {
	Host string
}

func (e MalformedHostError) Error() string {
	return fmt.Sprintf("cannot resolve host %q", e.Host)
}

// MalformedPathError reports a request path that cannot name an asset.
type MalformedPathError struct {
	Path string
}

func (e MalformedPathError) Error() string {
	return fmt.Sprintf("cannot resolve path %q", e.Path)
}

// Resolution is a successfully resolved request: whose content to
// serve and which asset within it. An empty AssetPath addresses the
// site root.
type Resolution struct {
	Location  pages.Location
	AssetPath string
	// AliasDomain is the matched custom domain when the request was
	// resolved through the alias table, empty otherwise. A not-found
	// answer for an alias-resolved request means the alias dangles.
	AliasDomain string
}

// Resolver resolves hosts and paths against a base domain and a
// read-only domain alias table.
type Resolver struct {
	baseDomain string
	aliases    map[string]pages.Location
}

// New creates a resolver for the given base domain. An empty base
// domain disables the subdomain form and treats every non-alias host
// as the base, matching single-domain deployments. Alias keys are
// normalized to lowercase without a trailing dot.
func New(baseDomain string, aliases map[string]pages.Location) *Resolver {
	normalized := make(map[string]pages.Location, len(aliases))
	for domain, loc := range aliases {
		normalized[normalizeHost(domain)] = loc.WithDefaults()
	}
	return &Resolver{
		baseDomain: normalizeHost(baseDomain),
		aliases:    normalized,
	}
}

// Resolve maps a request host and path to a location and asset path.
func (r *Resolver) Resolve(host, requestPath string) (Resolution, error) {
	host = normalizeHost(host)

	// Custom domains win over everything, including hosts that would
	// also parse as a subdomain of the base domain.
	if loc, ok := r.aliases[host]; ok {
		assetPath, err := cleanRequestPath(requestPath)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Location: loc, AssetPath: assetPath, AliasDomain: host}, nil
	}

	if r.baseDomain == "" || host == r.baseDomain {
		return r.resolveSubdirectory(requestPath)
	}
	if prefix, ok := strings.CutSuffix(host, "."+r.baseDomain); ok {
		return r.resolveSubdomain(host, prefix, requestPath)
	}
	return Resolution{}, MalformedHostError{Host: host}
}

// resolveSubdomain assigns up to three leading labels right to left:
// owner, then page, then branch.
func (r *Resolver) resolveSubdomain(host, prefix, requestPath string) (Resolution, error) {
	labels := strings.Split(prefix, ".")
	if len(labels) > 3 {
		return Resolution{}, MalformedHostError{Host: host}
	}
	for _, label := range labels {
		if label == "" {
			return Resolution{}, MalformedHostError{Host: host}
		}
	}

	loc := pages.Location{Owner: labels[len(labels)-1]}
	if len(labels) > 1 {
		loc.Name = labels[len(labels)-2]
	}
	if len(labels) > 2 {
		loc.Branch = labels[0]
	}

	assetPath, err := cleanRequestPath(requestPath)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Location: loc.WithDefaults(), AssetPath: assetPath}, nil
}

// resolveSubdirectory parses /owner/page(:branch)/asset-path. The
// owner segment is mandatory. The second segment names a page when it
// carries an explicit :branch suffix or when further segments follow;
// with exactly two segments it is the asset path of the default page.
func (r *Resolver) resolveSubdirectory(requestPath string) (Resolution, error) {
	segments, err := splitRequestPath(requestPath)
	if err != nil {
		return Resolution{}, err
	}
	if len(segments) == 0 {
		return Resolution{}, MalformedPathError{Path: requestPath}
	}

	loc := pages.Location{Owner: segments[0]}
	rest := segments[1:]

	if len(rest) > 0 {
		name, branch, hasBranch := strings.Cut(rest[0], ":")
		switch {
		case hasBranch:
			if name == "" || branch == "" {
				return Resolution{}, MalformedPathError{Path: requestPath}
			}
			loc.Name = name
			loc.Branch = branch
			rest = rest[1:]
		case len(rest) > 1:
			loc.Name = name
			rest = rest[1:]
		}
	}

	return Resolution{
		Location:  loc.WithDefaults(),
		AssetPath: strings.Join(rest, "/"),
	}, nil
}

// normalizeHost lowercases a host and strips any port and trailing dot.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// cleanRequestPath normalizes a request path to a relative asset path,
// rejecting traversal before it can reach any backend.
func cleanRequestPath(requestPath string) (string, error) {
	cleaned, err := pages.CleanAssetPath(requestPath)
	if err != nil {
		return "", MalformedPathError{Path: requestPath}
	}
	return cleaned, nil
}

func splitRequestPath(requestPath string) ([]string, error) {
	cleaned, err := cleanRequestPath(requestPath)
	if err != nil {
		return nil, err
	}
	if cleaned == "" {
		return nil, nil
	}
	return strings.Split(cleaned, "/"), nil
}
