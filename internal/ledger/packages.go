package ledger

// Package is a purchasable credit bundle. The catalog is a static in-code
// table; Stripe product metadata remains the source of truth during
// reconciliation and this table is only the documented fallback.
type Package struct {
	ID         string
	Name       string
	Credits    int64
	PriceCents int64
	Currency   string
}

var creditPackages = []Package{
	{ID: "starter", Name: "Starter", Credits: 10, PriceCents: 4900, Currency: "eur"},
	{ID: "business", Name: "Business", Credits: 50, PriceCents: 19900, Currency: "eur"},
	{ID: "enterprise", Name: "Enterprise", Credits: 200, PriceCents: 59900, Currency: "eur"},
}

// Packages returns the credit package catalog.
func Packages() []Package {
	out := make([]Package, len(creditPackages))
	copy(out, creditPackages)
	return out
}

// PackageByID looks up a package by id.
func PackageByID(id string) (Package, error) {
	for _, p := range creditPackages {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, ErrPackageNotFound
}
