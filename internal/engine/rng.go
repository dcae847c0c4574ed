package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// ByteGenerator generates cryptographically secure bytes using HMAC-SHA256.
// Each round hashes "clientSeed:nonce:round" keyed by the server seed and
// yields 32 bytes; the generator streams through rounds as bytes are consumed.
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a new byte generator starting at the given cursor
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}

	bg.generateRound()

	return bg
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextUint64 reads the next 8 bytes as a big-endian integer
func (bg *ByteGenerator) NextUint64() uint64 {
	var b [8]byte
	for i := range b {
		b[i] = bg.Next()
	}
	return binary.BigEndian.Uint64(b[:])
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// UintInRange maps the generator output for (serverSeed, clientSeed, nonce)
// onto the inclusive range [lo, hi]. It panics if lo > hi.
//
// The first 8 bytes are reduced modulo the range width. For the widths a
// guessing game uses the modulo bias is below 2^-40 and is ignored.
func UintInRange(serverSeed, clientSeed string, nonce uint64, lo, hi uint64) uint64 {
	if lo > hi {
		panic(fmt.Sprintf("engine: invalid range [%d, %d]", lo, hi))
	}

	raw := NewByteGenerator(serverSeed, clientSeed, nonce, 0).NextUint64()

	span := hi - lo
	if span == math.MaxUint64 {
		return raw
	}
	return lo + raw%(span+1)
}

// BlockSeed derives the public per-block entropy string for a height.
// Contracts treat it as an opaque server seed.
func BlockSeed(serverSeed string, height uint64) string {
	h := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(h, "block:%d", height)
	return hex.EncodeToString(h.Sum(nil))
}

// HashSeed returns the hex SHA-256 of a seed, for logs and health output
// where the seed itself must not appear.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
