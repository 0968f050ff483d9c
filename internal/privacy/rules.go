package privacy

import (
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Entity types reported by the built-in recognizers. Names follow the
// presidio-analyzer vocabulary so both engines are interchangeable.
const (
	EntityEmail      = "EMAIL_ADDRESS"
	EntityPhone      = "PHONE_NUMBER"
	EntityCreditCard = "CREDIT_CARD"
	EntityIP         = "IP_ADDRESS"
	EntitySSN        = "US_SSN"
	EntityIBAN       = "IBAN_CODE"
	EntityURL        = "URL"
	EntityCrypto     = "CRYPTO"
	EntityDateTime   = "DATE_TIME"
	EntityMAC        = "MAC_ADDRESS"
	EntityPerson     = "PERSON"
	EntityLocation   = "LOCATION"
)

const denyListScore = 0.85

// GetDefaultRules returns the pattern recognizers shipped with the service.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Name:       "email",
			EntityType: EntityEmail,
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Score:      1.0,
		},
		{
			Name:       "credit_card",
			EntityType: EntityCreditCard,
			Pattern:    regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
			Score:      1.0,
			Validate:   luhn,
		},
		{
			Name:       "iban",
			EntityType: EntityIBAN,
			Pattern:    regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`),
			Score:      1.0,
			Validate:   ibanChecksum,
		},
		{
			Name:       "ssn",
			EntityType: EntitySSN,
			Pattern:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Score:      0.85,
			Validate:   plausibleSSN,
		},
		{
			Name:       "phone",
			EntityType: EntityPhone,
			Pattern:    regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
			Score:      0.75,
		},
		{
			Name:       "ip_address",
			EntityType: EntityIP,
			Pattern:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
			Score:      0.95,
		},
		{
			Name:       "url",
			EntityType: EntityURL,
			Pattern:    regexp.MustCompile(`\bhttps?://[^\s<>"']+[^\s<>"'.,;:!?)]`),
			Score:      0.6,
		},
		{
			Name:       "crypto",
			EntityType: EntityCrypto,
			Pattern:    regexp.MustCompile(`\b(?:bc1|[13])[a-km-zA-HJ-NP-Z1-9]{25,39}\b`),
			Score:      0.5,
		},
		{
			Name:       "date",
			EntityType: EntityDateTime,
			Pattern:    regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`),
			Score:      0.6,
		},
		{
			Name:       "mac_address",
			EntityType: EntityMAC,
			Pattern:    regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`),
			Score:      0.8,
		},
	}
}

// DefaultDenyLists seeds the name and place recognizers.
func DefaultDenyLists() map[string][]string {
	return map[string][]string{
		EntityPerson:   {"John", "Jane", "Alice", "Bob", "Maria", "Mohammed", "Wei", "Olga"},
		EntityLocation: {"London", "Paris", "Berlin", "Madrid", "New York", "Tokyo", "Rome", "Lisbon"},
	}
}

// NewDenyListRule matches whole words from terms, longest first.
func NewDenyListRule(entityType string, terms []string) (DetectionRule, bool) {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			quoted = append(quoted, regexp.QuoteMeta(term))
		}
	}
	if len(quoted) == 0 {
		return DetectionRule{}, false
	}
	// alternation prefers the first branch; longer terms must win
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return DetectionRule{
		Name:       "deny_list_" + strings.ToLower(entityType),
		EntityType: entityType,
		Pattern:    regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		Score:      denyListScore,
	}, true
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func luhn(match string) bool {
	digits := digitsOnly(match)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ibanChecksum applies the ISO 13616 mod-97 check.
func ibanChecksum(match string) bool {
	iban := strings.ReplaceAll(match, " ", "")
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	rearranged := iban[4:] + iban[:4]

	var numeric strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			numeric.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			numeric.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(numeric.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// Area 000, 666 and 9xx, group 00 and serial 0000 are never issued.
func plausibleSSN(match string) bool {
	d := digitsOnly(match)
	if len(d) != 9 {
		return false
	}
	area, group, serial := d[:3], d[3:5], d[5:]
	return area != "000" && area != "666" && area[0] != '9' && group != "00" && serial != "0000"
}
