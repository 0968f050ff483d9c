package pseudonym

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/raaihank/deidentifier/internal/domain"
)

const randomBits = 24

// RandomNumber assigns a cryptographically random 24-bit number to each new
// (type, text) pair.
type RandomNumber struct {
	cache *mapping
}

func NewRandomNumber() *RandomNumber {
	return &RandomNumber{cache: newMapping()}
}

func (r *RandomNumber) ID() domain.MethodID { return domain.MethodRandomNumber }

func (r *RandomNumber) Generate(entity domain.Entity) string {
	return r.cache.getOrCreate(entity, func() string {
		return format(entity.Type, randomUint24())
	})
}

func randomUint24() uint32 {
	var buf [4]byte
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint32(buf[:]) >> (32 - randomBits)
}
