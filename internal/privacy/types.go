package privacy

import "regexp"

// DetectionRule represents a single PII recognizer
type DetectionRule struct {
	Name       string
	EntityType string
	Pattern    *regexp.Regexp
	Score      float64
	// Validate, when set, rejects matches that fit the pattern but fail a
	// checksum, e.g. Luhn for card numbers.
	Validate func(match string) bool
}

// Match is one raw recognizer hit, in byte offsets.
type Match struct {
	Rule  string
	Start int
	End   int
	Score float64
}
