package pages

import "strings"

// CleanAssetPath normalizes a slash-separated asset path to a relative
// path under the branch root. Backslashes are treated as separators,
// empty and "." segments are dropped, and any ".." segment is rejected
// outright so a path can never escape the branch root.
func CleanAssetPath(raw string) (string, error) {
	normalized := strings.ReplaceAll(raw, "\\", "/")

	segments := make([]string, 0, 8)
	for _, segment := range strings.Split(normalized, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			return "", InvalidPathError{Path: raw}
		}
		if strings.ContainsRune(segment, '\x00') {
			return "", InvalidPathError{Path: raw}
		}
		segments = append(segments, segment)
	}

	return strings.Join(segments, "/"), nil
}
