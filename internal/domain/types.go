package domain

import "strings"

// Operator names an anonymization transformation applied per entity.
type Operator string

const (
	OperatorReplace      Operator = "replace"
	OperatorRedact       Operator = "redact"
	OperatorMask         Operator = "mask"
	OperatorHash         Operator = "hash"
	OperatorEncrypt      Operator = "encrypt"
	OperatorPseudonymize Operator = "pseudonymize"
)

// AnonymizationOperators lists the operators a caller may request directly.
func AnonymizationOperators() []Operator {
	return []Operator{OperatorReplace, OperatorRedact, OperatorMask, OperatorHash, OperatorEncrypt}
}

// ParseOperator normalizes case and rejects unknown anonymization operators.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AnonymizationOperators() {
		if op == known {
			return op, nil
		}
	}
	return "", NewConfigurationError("Unsupported anonymization operator: "+s, nil)
}

// MethodID names a pseudonymization strategy.
type MethodID string

const (
	MethodRandomNumber MethodID = "random_number"
	MethodCounter      MethodID = "counter"
	MethodCryptoHash   MethodID = "crypto_hash"
)

// PseudonymizationMethods lists the supported methods.
func PseudonymizationMethods() []MethodID {
	return []MethodID{MethodRandomNumber, MethodCounter, MethodCryptoHash}
}

// ParseMethod normalizes case and rejects unknown methods.
func ParseMethod(s string) (MethodID, error) {
	m := MethodID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PseudonymizationMethods() {
		if m == known {
			return m, nil
		}
	}
	return "", NewConfigurationError("Unsupported pseudonymization method: "+s, nil)
}

// EnrichmentType names an enricher implementation.
type EnrichmentType string

const EnrichmentHTTP EnrichmentType = "http"

// Language codes accepted by the detection engines.
const LanguageEnglish = "en"

// AnalysisOptions narrows a detection run. Empty EntityTypes means every
// type the engine supports.
type AnalysisOptions struct {
	Language    string
	MinScore    float64
	EntityTypes []string
}

// Allows reports whether entityType passes the allowlist.
func (o AnalysisOptions) Allows(entityType string) bool {
	if len(o.EntityTypes) == 0 {
		return true
	}
	for _, t := range o.EntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}
