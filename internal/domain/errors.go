package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a domain error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindEntityTypeValidation
	KindUnsupportedDataType
	KindAnalysis
	KindAnonymization
	KindPseudonymization
	KindConfiguration
	KindEnrichment
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindEntityTypeValidation:
		return "entity_type_validation"
	case KindUnsupportedDataType:
		return "unsupported_data_type"
	case KindAnalysis:
		return "analysis"
	case KindAnonymization:
		return "anonymization"
	case KindPseudonymization:
		return "pseudonymization"
	case KindConfiguration:
		return "configuration"
	case KindEnrichment:
		return "enrichment"
	default:
		return "unknown"
	}
}

// Scope tells which content family an operation error belongs to.
type Scope string

const (
	ScopeNone       Scope = ""
	ScopeText       Scope = "text"
	ScopeStructured Scope = "structured"
)

// Error is the single root type of every de-identification failure.
type Error struct {
	Kind        Kind
	Scope       Scope
	Msg         string
	Cause       error
	EntityTypes []string
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches sentinel errors by kind. ErrDomain matches every *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == ErrDomain {
		return true
	}
	if t.Msg != "" || t.Cause != nil {
		return e == t
	}
	return t.Kind == e.Kind && (t.Scope == ScopeNone || t.Scope == e.Scope)
}

// Sentinels for errors.Is checks.
var (
	ErrDomain                     = &Error{}
	ErrInvalidInput               = &Error{Kind: KindInvalidInput}
	ErrEntityTypeValidation       = &Error{Kind: KindEntityTypeValidation}
	ErrUnsupportedDataType        = &Error{Kind: KindUnsupportedDataType}
	ErrAnalysis                   = &Error{Kind: KindAnalysis}
	ErrAnonymization              = &Error{Kind: KindAnonymization}
	ErrTextAnonymization          = &Error{Kind: KindAnonymization, Scope: ScopeText}
	ErrStructuredAnonymization    = &Error{Kind: KindAnonymization, Scope: ScopeStructured}
	ErrPseudonymization           = &Error{Kind: KindPseudonymization}
	ErrTextPseudonymization       = &Error{Kind: KindPseudonymization, Scope: ScopeText}
	ErrStructuredPseudonymization = &Error{Kind: KindPseudonymization, Scope: ScopeStructured}
	ErrConfiguration              = &Error{Kind: KindConfiguration}
	ErrEnrichment                 = &Error{Kind: KindEnrichment}
)

func NewInvalidInputError(msg string) error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

// NewUnsupportedLanguageError reports a language the engine cannot analyze.
func NewUnsupportedLanguageError(language string) error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf("Language %q is not supported", language)}
}

// NewEntityTypeValidationError lists every unsupported type in its message.
func NewEntityTypeValidationError(unsupported []string) error {
	return &Error{
		Kind:        KindEntityTypeValidation,
		Msg:         "Unsupported entity types: " + strings.Join(unsupported, ", "),
		EntityTypes: unsupported,
	}
}

func NewUnsupportedDataTypeError(msg string) error {
	return &Error{Kind: KindUnsupportedDataType, Msg: msg}
}

func NewAnalysisError(msg string, cause error) error {
	return &Error{Kind: KindAnalysis, Msg: msg, Cause: cause}
}

func NewAnonymizationError(scope Scope, msg string, cause error) error {
	return &Error{Kind: KindAnonymization, Scope: scope, Msg: msg, Cause: cause}
}

func NewPseudonymizationError(scope Scope, msg string, cause error) error {
	return &Error{Kind: KindPseudonymization, Scope: scope, Msg: msg, Cause: cause}
}

func NewConfigurationError(msg string, cause error) error {
	return &Error{Kind: KindConfiguration, Msg: msg, Cause: cause}
}

func NewEnrichmentError(msg string, cause error) error {
	return &Error{Kind: KindEnrichment, Msg: msg, Cause: cause}
}

// KindOf returns the kind of the outermost domain error in the chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsClientError reports whether the failure is fixable by the caller.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindEntityTypeValidation, KindUnsupportedDataType:
		return true
	default:
		return false
	}
}
