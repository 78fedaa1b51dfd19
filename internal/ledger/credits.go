package ledger

import "strconv"

// CreditSource records which fallback produced the credit amount.
type CreditSource string

const (
	SourceSessionMetadata CreditSource = "session_metadata"
	SourceProductMetadata CreditSource = "product_metadata"
	SourcePackageTable    CreditSource = "package_table"
	SourceNone            CreditSource = "none"
)

// ResolveCredits determines how many credits a completed checkout session is
// worth. Resolution order: the session's own credits metadata, then the first
// non-zero credits value found in line-item product metadata, then the static
// package table keyed by package id. A zero result means the session carries
// no resolvable credit amount and the grant must be skipped.
func ResolveCredits(sessionCredits string, productCredits []string, packageID string) (int64, CreditSource) {
	if n, ok := parseCredits(sessionCredits); ok {
		return n, SourceSessionMetadata
	}

	for _, raw := range productCredits {
		if n, ok := parseCredits(raw); ok {
			return n, SourceProductMetadata
		}
	}

	if pkg, err := PackageByID(packageID); err == nil && pkg.Credits > 0 {
		return pkg.Credits, SourcePackageTable
	}

	return 0, SourceNone
}

func parseCredits(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
