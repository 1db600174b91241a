package service

import "github.com/gosimple/slug"

// deriveSlug computes the URL-safe slug for a product name. The same name
// always yields the same slug, so a product's slug can be recomputed
// whenever its name changes.
func deriveSlug(name string) string {
	return slug.Make(name)
}
