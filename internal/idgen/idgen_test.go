package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTradeRef_ReturnsUniqueNonEmptyValues(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := TradeRef()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestTradeRef_IDsAreMonotonicallySortable(t *testing.T) {
	first := TradeRef()
	second := TradeRef()
	assert.Less(t, first, second, "ULIDs generated in sequence must sort increasing")
}

func TestOrderRef_IsSameShapeAsTradeRef(t *testing.T) {
	assert.Len(t, OrderRef(), len(TradeRef()))
}

func TestClientOrderID_ReturnsUniqueValues(t *testing.T) {
	a := ClientOrderID()
	b := ClientOrderID()
	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	assert.NotEqual(t, a, b)
}
