package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBounded_PushFrontEvictsTail(t *testing.T) {
	b := NewBounded[int](3)
	for i := range 3 {
		_, ok := b.PushFront(i)
		assert.False(t, ok)
	}
	ev, ok := b.PushFront(3)
	assert.True(t, ok)
	assert.Equal(t, 0, ev)
	assert.Equal(t, []int{3, 2, 1}, b.Snapshot())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
}

func TestBounded_RemoveFunc(t *testing.T) {
	b := NewBounded[int](5)
	for i := range 5 {
		b.PushFront(i)
	}
	removed := b.RemoveFunc(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{4, 2, 0}, removed)
	assert.Equal(t, []int{3, 1}, b.Snapshot())
	assert.Nil(t, b.RemoveFunc(func(v int) bool { return v > 10 }))
}

func TestBounded_Backward(t *testing.T) {
	b := NewBounded[string](4)
	b.PushFront("a")
	b.PushFront("b")
	b.PushFront("c")
	var order []string
	b.Backward(func(_ int, v *string) bool {
		order = append(order, *v)
		return *v != "b"
	})
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBounded_SnapshotIsCopy(t *testing.T) {
	b := NewBounded[int](2)
	b.PushFront(1)
	snap := b.Snapshot()
	snap[0] = 42
	assert.Equal(t, 1, *b.At(0))
}

func TestBounded_ZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewBounded[int](0)
	})
}
