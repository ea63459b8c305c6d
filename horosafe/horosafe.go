// Package horosafe holds the input guards shared by the export writer and the
// operator surfaces: file names derived from session ids, bounded reads of
// pasted raw sessions, and start URL validation.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxRawSession caps a raw session document accepted from a file, an HTTP
// body or an MCP argument (32 MiB).
const MaxRawSession int64 = 32 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the input exceeds the cap.
var ErrTooLarge = errors.New("horosafe: input too large")

// ErrUnsafeScheme is returned when a start URL is not http, https or file.
var ErrUnsafeScheme = errors.New("horosafe: only http, https and file URLs can be recorded")

// SafePath joins base and name, rejecting any result outside base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+name))
	root := filepath.Clean(base)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateIdentifier rejects identifiers unsuitable as file names: only
// alphanumerics, underscore, hyphen and dot are allowed.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("horosafe: identifier too long (max 256)")
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// ValidateStartURL checks the URL a recording browser is pointed at.
// Private and loopback hosts are allowed: recorded portals are often intranet.
func ValidateStartURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Hostname() == "" {
			return fmt.Errorf("horosafe: URL has no host")
		}
		return nil
	case "file":
		return nil
	default:
		return ErrUnsafeScheme
	}
}
