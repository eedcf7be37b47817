package security

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

var (
	ErrPrivateIP      = fmt.Errorf("URL resolves to private IP address")
	ErrInvalidScheme  = fmt.Errorf("only HTTPS URLs are allowed")
	ErrMissingHost    = fmt.Errorf("URL has no host")
	ErrBadImportExt   = fmt.Errorf("unsupported image file extension")
	ErrEmptyImportArg = fmt.Errorf("import path is empty")
)

var importExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// skipValidation disables network checks in tests that use loopback servers.
var skipValidation = false

func SetSkipValidation(skip bool) {
	skipValidation = skip
}

// ValidateRelayURL checks a user-configured relay endpoint before any
// drawing is posted to it: HTTPS only, a resolvable public host.
func ValidateRelayURL(rawURL string) error {
	if skipValidation {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}
	host := parsed.Hostname()
	if host == "" {
		return ErrMissingHost
	}

	return validateHostIP(host)
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable now may still resolve at request time; the request
		// itself will fail with a clear error.
		return nil
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrPrivateIP, ip)
	}
	return nil
}

// ValidateImportPath checks a user-supplied drawing file before it is read:
// non-empty and a known raster extension. Existence and readability are the
// reader's concern.
func ValidateImportPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyImportArg
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !importExtensions[ext] {
		return fmt.Errorf("%w: %q", ErrBadImportExt, ext)
	}
	return nil
}
