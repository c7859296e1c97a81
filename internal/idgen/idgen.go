// Package idgen generates time-sortable identifiers for trades and orders.
package idgen

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable, wrapped
	// in ulid.Monotonic so IDs generated within the same millisecond stay
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// TradeRef returns a ULID string identifying a Trade record. ULIDs sort
// lexicographically by generation time, which keeps trades.json and the
// SQLite audit index naturally ordered.
func TradeRef() string {
	mu.Lock()
	defer mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// OrderRef is an alias of TradeRef used for positions' originating order id.
func OrderRef() string { return TradeRef() }

// ClientOrderID returns a fresh idempotency key for a broker submit_order
// call. Unlike TradeRef, callers must generate this once per logical
// submission attempt and reuse it across polling retries of that same
// attempt — a fresh UUID per retry would defeat the broker's own dedupe.
func ClientOrderID() string {
	return uuid.NewString()
}
