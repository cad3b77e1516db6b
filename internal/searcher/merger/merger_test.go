package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	score float32
	id    int
}

func better(a, b item) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

func TestTopNKeepsBest(t *testing.T) {
	top := NewTopN(3, better)
	for i, s := range []float32{0.5, 2, 1, 3, 0.1, 2} {
		top.Push(item{score: s, id: i})
	}
	assert.Equal(t, 3, top.Len())
	assert.Equal(t, []item{{3, 3}, {2, 1}, {2, 5}}, top.Sorted())
}

func TestTopNZeroLimit(t *testing.T) {
	top := NewTopN(0, better)
	top.Push(item{score: 1})
	assert.Empty(t, top.Sorted())
}

func TestMerge(t *testing.T) {
	a := []item{{5, 0}, {1, 2}}
	b := []item{{5, 1}, {4, 3}, {0.5, 4}}
	got := Merge([][]item{b, a}, 3, better)
	assert.Equal(t, []item{{5, 0}, {5, 1}, {4, 3}}, got)

	assert.Len(t, Merge([][]item{a, b}, 10, better), 5)
}
