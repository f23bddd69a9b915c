package pages

import "fmt"

// NotFoundError is returned when an owner, page, branch or asset does
// not exist upstream. It is terminal and must not be retried.
type NotFoundError struct {
	Location Location
	Path     string
}

func (e NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("page %s not found", e.Location)
	}
	return fmt.Sprintf("asset %s at %s not found", e.Path, e.Location)
}

// UpstreamError is returned on a transient backend failure (network
// error, timeout, 5xx). Callers may retry a bounded number of times.
type UpstreamError struct {
	Location Location
	Err      error
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("upstream failure for %s: %v", e.Location, e.Err)
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}

// TooLargeError is returned when an asset exceeds the configured size
// ceiling. It is a policy rejection, not a transient failure.
type TooLargeError struct {
	Location Location
	Path     string
	Size     int64
	Limit    int64
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("asset %s at %s is %d bytes, limit is %d", e.Path, e.Location, e.Size, e.Limit)
}

// AliasNotResolvedError is returned when a domain alias points at a
// location that no longer exists upstream. Surfaced to clients as not
// found; logged as a configuration consistency issue.
type AliasNotResolvedError struct {
	Domain   string
	Location Location
}

func (e AliasNotResolvedError) Error() string {
	return fmt.Sprintf("domain alias %s points at missing page %s", e.Domain, e.Location)
}

// InvalidPathError is returned for asset paths that escape the branch
// root or are otherwise malformed.
type InvalidPathError struct {
	Path string
}

func (e InvalidPathError) Error() string {
	return fmt.Sprintf("invalid asset path %q", e.Path)
}
