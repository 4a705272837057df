package reuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.IsUsed("c1"))

	tr.MarkUsed("c1")
	tr.MarkUsedMany([]string{"c2", "c3", "c1"})
	assert.True(t, tr.IsUsed("c1"))
	assert.True(t, tr.IsUsed("c3"))
	assert.Equal(t, 3, tr.Len())

	tr.Reset()
	assert.False(t, tr.IsUsed("c1"))
	assert.Equal(t, 0, tr.Len())
}

func TestFromPathIsIndependent(t *testing.T) {
	path := []string{"a", "b"}
	first := FromPath(path)
	second := FromPath(path[:1])

	first.MarkUsed("c")

	assert.True(t, first.IsUsed("b"))
	assert.False(t, second.IsUsed("b"))
	assert.False(t, second.IsUsed("c"))
}
