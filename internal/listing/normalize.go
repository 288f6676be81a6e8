package listing

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeSource turns a raw identifier (profile URL, @handle, or bare
// handle) into a stable source. The key is the lowercased @handle when one
// can be derived and the host+path otherwise; baseURL supplies the platform
// for non-URL inputs.
func NormalizeSource(raw, baseURL string) (key, canonicalURL string, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", fmt.Errorf("source identifier is empty")
	}

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		handle := strings.TrimPrefix(s, "@")
		if handle == "" {
			return "", "", fmt.Errorf("source identifier %q has no handle", raw)
		}
		base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if base == "" {
			return "", "", fmt.Errorf("base URL required to resolve handle %q", raw)
		}
		return "@" + strings.ToLower(handle), base + "/@" + handle, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("parse source URL %q: %w", raw, err)
	}
	for _, part := range strings.Split(u.Path, "/") {
		if strings.HasPrefix(part, "@") && len(part) > 1 {
			return strings.ToLower(part), s, nil
		}
	}
	key = strings.ToLower(u.Host + strings.TrimRight(u.Path, "/"))
	if key == "" {
		return "", "", fmt.Errorf("source URL %q has no usable identifier", raw)
	}
	return key, s, nil
}
