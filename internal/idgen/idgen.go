// Package idgen generates prefixed, fixed-length random identifiers.
//
// The alphabet and crypto/rand-backed approach mirror the pairing-code
// generator in goclaw's internal/pairing package, adapted to a 62-symbol
// alphabet and variable prefix/length so it can mint both mem_ and ch_
// identifiers from the same code path.
package idgen

import (
	"crypto/rand"
	"fmt"
)

// alphabet is the 62-symbol set spec §4.1 requires: digits, uppercase,
// lowercase, in that order.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const alphabetLen = byte(len(alphabet))

// Minter mints prefixed base62 identifiers of a fixed length.
type Minter struct {
	prefix string
	length int
}

// New returns a Minter that produces "{prefix}_" followed by length
// base62 characters, each chosen by reducing one random byte modulo 62
// (256 is not a multiple of 62, so the first 8 symbols of the alphabet
// come up slightly more often than the rest).
func New(prefix string, length int) Minter {
	return Minter{prefix: prefix, length: length}
}

// MemoryMinter mints mem_ identifiers, 12 characters long, per spec §4.1.
func MemoryMinter() Minter { return New("mem", 12) }

// ChunkMinter mints ch_ identifiers, 12 characters long, per spec §4.1.
func ChunkMinter() Minter { return New("ch", 12) }

// Mint generates a new identifier. Failure to read from the system's
// cryptographic random source is fatal: callers should treat a non-nil
// error as unrecoverable, per spec §4.1 ("insertion errors on collision
// bubble up as fatal" applies transitively to entropy failures).
func (m Minter) Mint() (string, error) {
	buf := make([]byte, m.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: read random bytes: %w", err)
	}
	out := make([]byte, m.length)
	for i, b := range buf {
		out[i] = alphabet[b%alphabetLen]
	}
	return fmt.Sprintf("%s_%s", m.prefix, string(out)), nil
}

// MustMint is Mint but panics on entropy failure, for call sites that
// cannot meaningfully recover (matches the "fatal" classification of
// spec §4.1/§4.12).
func (m Minter) MustMint() string {
	id, err := m.Mint()
	if err != nil {
		panic(err)
	}
	return id
}
