package validation

import (
	"fmt"
	"regexp"
)

var categoryRegex = regexp.MustCompile(`^[a-z0-9-]{2,40}$`)

// Post categories the feed recognizes. Anything else is rejected at submission.
var knownCategories = map[string]struct{}{
	"life":       {},
	"health":     {},
	"auto":       {},
	"home":       {},
	"commercial": {},
	"claims":     {},
	"regulation": {},
	"sales":      {},
	"general":    {},
}

// ValidateCategory validates a post category.
func ValidateCategory(category string) error {
	if category == "" {
		return nil
	}
	if !categoryRegex.MatchString(category) {
		return fmt.Errorf("category must be 2-40 characters of lowercase letters, numbers, and hyphens")
	}
	if _, ok := knownCategories[category]; !ok {
		return fmt.Errorf("unknown category %q", category)
	}
	return nil
}
