package id

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token is a 128-bit idempotency token chosen by producers.
type Token [16]byte

// NewToken returns a random (version 4) token.
func NewToken() Token { return Token(uuid.New()) }

// TokenFromUint64 builds a token from two halves; tests use it for readable tokens.
func TokenFromUint64(hi, lo uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[0:8], hi)
	binary.BigEndian.PutUint64(t[8:16], lo)
	return t
}

func (t Token) String() string { return hex.EncodeToString(t[:]) }

func (t Token) IsZero() bool { return t == Token{} }

// MarshalText encodes the token as 32 lowercase hex characters.
func (t Token) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(t[:])), nil }

// UnmarshalText accepts 32 hex characters or a canonical UUID string.
func (t *Token) UnmarshalText(b []byte) error {
	if len(b) == 32 {
		_, err := hex.Decode(t[:], b)
		return err
	}
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("id: invalid token %q: %w", b, err)
	}
	*t = Token(u)
	return nil
}

// ID is a 128-bit, lexicographically sortable identifier encoded as
// [8 bytes ms timestamp][8 bytes sequence], big-endian.
type ID [16]byte

func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Generator produces monotonically increasing IDs per process. The gRPC
// server stamps each call with one.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. A clock moving backwards reuses lastMs; a sequence
// overflow within one millisecond waits for the next one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.sequence)
	return out
}
