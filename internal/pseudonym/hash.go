package pseudonym

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/raaihank/deidentifier/internal/domain"
)

const hashSize = 8

// CryptoHash derives the pseudonym from BLAKE2b(salt || type || ":" || text).
// Two instances with the same salt agree on every pseudonym.
type CryptoHash struct {
	salt  string
	cache *mapping
}

func NewCryptoHash(salt string) *CryptoHash {
	return &CryptoHash{salt: salt, cache: newMapping()}
}

func (h *CryptoHash) ID() domain.MethodID { return domain.MethodCryptoHash }

func (h *CryptoHash) Generate(entity domain.Entity) string {
	return h.cache.getOrCreate(entity, func() string {
		return format(entity.Type, h.digest(entity))
	})
}

func (h *CryptoHash) digest(entity domain.Entity) string {
	// blake2b.New only fails for an oversized key or digest size
	d, _ := blake2b.New(hashSize, nil)
	d.Write([]byte(h.salt))
	d.Write([]byte(entity.Type))
	d.Write([]byte{':'})
	d.Write([]byte(entity.Text))
	return strings.ToUpper(hex.EncodeToString(d.Sum(nil)))
}
