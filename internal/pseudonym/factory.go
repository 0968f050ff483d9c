package pseudonym

import (
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/raaihank/deidentifier/internal/domain"
)

// Params carries method specific settings as they arrive from a request body
// or configuration, e.g. {"start_number": 10} or {"salt": "s3cr3t"}.
type Params map[string]any

type counterParams struct {
	StartNumber *int `mapstructure:"start_number"`
}

type hashParams struct {
	Salt string `mapstructure:"salt"`
}

// New builds a fresh Method instance. Unknown identifiers and malformed
// parameters fail with a configuration error.
func New(id domain.MethodID, params Params) (Method, error) {
	switch id {
	case domain.MethodRandomNumber:
		return NewRandomNumber(), nil

	case domain.MethodCounter:
		var p counterParams
		if err := decodeParams(params, &p); err != nil {
			return nil, domain.NewConfigurationError("start_number must be an integer", err)
		}
		start := DefaultStartNumber
		if p.StartNumber != nil {
			start = *p.StartNumber
		}
		return NewCounter(start)

	case domain.MethodCryptoHash:
		var p hashParams
		if err := decodeParams(params, &p); err != nil {
			return nil, domain.NewConfigurationError("salt must be a string", err)
		}
		return NewCryptoHash(p.Salt), nil

	default:
		return nil, domain.NewConfigurationError(
			fmt.Sprintf("Unsupported pseudonymization method: %s. Supported methods: %v",
				id, domain.PseudonymizationMethods()), nil)
	}
}

func decodeParams(params Params, out any) error {
	if len(params) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: integralFloatHook,
		Result:     out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(params))
}

// JSON numbers decode as float64; only whole values are accepted for ints.
func integralFloatHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int || (from.Kind() != reflect.Float64 && from.Kind() != reflect.Float32) {
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", data)
	}
	return int(f), nil
}
