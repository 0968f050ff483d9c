package engine

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"

	"github.com/raaihank/deidentifier/internal/domain"
)

// Operator rewrites the text of a single entity.
type Operator interface {
	Operate(ctx context.Context, entity domain.Entity) (string, error)
	Name() domain.Operator
}

// Params is an operator parameter bag as received from a request.
type Params map[string]any

// NewOperator builds one of the anonymization operators from its name and
// parameters. Bad parameters fail with a configuration error.
func NewOperator(name domain.Operator, params Params) (Operator, error) {
	switch name {
	case domain.OperatorReplace:
		var op replaceOperator
		if err := decode(params, &op); err != nil {
			return nil, paramError(name, err)
		}
		return &op, nil

	case domain.OperatorRedact:
		return redactOperator{}, nil

	case domain.OperatorMask:
		op := maskOperator{MaskingChar: "*", CharsToMask: -1}
		if err := decode(params, &op); err != nil {
			return nil, paramError(name, err)
		}
		if utf8.RuneCountInString(op.MaskingChar) != 1 {
			return nil, paramError(name, fmt.Errorf("masking_char must be a single character"))
		}
		return &op, nil

	case domain.OperatorHash:
		op := hashOperator{HashType: "sha256"}
		if err := decode(params, &op); err != nil {
			return nil, paramError(name, err)
		}
		if op.HashType != "sha256" && op.HashType != "sha512" {
			return nil, paramError(name, fmt.Errorf("hash_type must be sha256 or sha512"))
		}
		return &op, nil

	case domain.OperatorEncrypt:
		var op encryptOperator
		if err := decode(params, &op); err != nil {
			return nil, paramError(name, err)
		}
		block, err := aes.NewCipher([]byte(op.Key))
		if err != nil {
			return nil, paramError(name, fmt.Errorf("key must be 16, 24 or 32 bytes: %w", err))
		}
		op.block = block
		return &op, nil

	default:
		return nil, domain.NewConfigurationError(fmt.Sprintf("Unsupported anonymization operator: %s", name), nil)
	}
}

func paramError(name domain.Operator, err error) error {
	return domain.NewConfigurationError(fmt.Sprintf("invalid %s operator parameters", name), err)
}

func decode(params Params, out any) error {
	if len(params) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(params))
}

// replaceOperator substitutes new_value, or <TYPE> when unset.
type replaceOperator struct {
	NewValue string `mapstructure:"new_value"`
}

func (o *replaceOperator) Name() domain.Operator { return domain.OperatorReplace }

func (o *replaceOperator) Operate(_ context.Context, entity domain.Entity) (string, error) {
	if o.NewValue != "" {
		return o.NewValue, nil
	}
	return "<" + entity.Type + ">", nil
}

type redactOperator struct{}

func (redactOperator) Name() domain.Operator { return domain.OperatorRedact }

func (redactOperator) Operate(context.Context, domain.Entity) (string, error) { return "", nil }

// maskOperator hides chars_to_mask characters (all when negative) from the
// start, or from the end when from_end is set.
type maskOperator struct {
	MaskingChar string `mapstructure:"masking_char"`
	CharsToMask int    `mapstructure:"chars_to_mask"`
	FromEnd     bool   `mapstructure:"from_end"`
}

func (o *maskOperator) Name() domain.Operator { return domain.OperatorMask }

func (o *maskOperator) Operate(_ context.Context, entity domain.Entity) (string, error) {
	runes := []rune(entity.Text)
	n := o.CharsToMask
	if n < 0 || n > len(runes) {
		n = len(runes)
	}
	mask := []rune(o.MaskingChar)[0]

	start, end := 0, n
	if o.FromEnd {
		start, end = len(runes)-n, len(runes)
	}
	for i := start; i < end; i++ {
		runes[i] = mask
	}
	return string(runes), nil
}

// hashOperator emits the lowercase hex digest of salt || text.
type hashOperator struct {
	HashType string `mapstructure:"hash_type"`
	Salt     string `mapstructure:"salt"`
}

func (o *hashOperator) Name() domain.Operator { return domain.OperatorHash }

func (o *hashOperator) Operate(_ context.Context, entity domain.Entity) (string, error) {
	var h hash.Hash
	if o.HashType == "sha512" {
		h = sha512.New()
	} else {
		h = sha256.New()
	}
	h.Write([]byte(o.Salt))
	h.Write([]byte(entity.Text))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// encryptOperator emits base64(iv || AES-CBC(PKCS#7(text))).
type encryptOperator struct {
	Key   string `mapstructure:"key"`
	block cipher.Block
}

func (o *encryptOperator) Name() domain.Operator { return domain.OperatorEncrypt }

func (o *encryptOperator) Operate(_ context.Context, entity domain.Entity) (string, error) {
	plain := pkcs7Pad([]byte(entity.Text), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(plain))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(o.block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses the encrypt operator for holders of the key.
func Decrypt(key, token string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext has invalid length %d", len(raw))
	}
	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || !bytes.Equal(bytes.Repeat([]byte{byte(pad)}, pad), plain[len(plain)-pad:]) {
		return "", fmt.Errorf("invalid padding")
	}
	return string(plain[:len(plain)-pad]), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	pad := size - len(b)%size
	out := make([]byte, len(b), len(b)+pad)
	copy(out, b)
	for i := 0; i < pad; i++ {
		out = append(out, byte(pad))
	}
	return out
}
