package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
	key  int
}

func (i item) Order() int { return i.key }
func (i item) WithOrder(k int) item {
	i.key = k
	return i
}

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func TestMoveUpAndDown(t *testing.T) {
	abc := []item{{"A", 0}, {"B", 1}, {"C", 2}}

	up, ok := Move(abc, 2, 0)
	require.True(t, ok)
	assert.Equal(t, []string{"C", "A", "B"}, names(up))

	down, ok := Move(abc, 0, 2)
	require.True(t, ok)
	assert.Equal(t, []string{"B", "C", "A"}, names(down))

	mid, ok := Move(abc, 0, 1)
	require.True(t, ok)
	assert.Equal(t, []string{"B", "A", "C"}, names(mid))

	// the input is never mutated
	assert.Equal(t, []string{"A", "B", "C"}, names(abc))
}

func TestMoveNoOps(t *testing.T) {
	abc := []item{{"A", 0}, {"B", 1}, {"C", 2}}
	_, ok := Move(abc, 1, 1)
	assert.False(t, ok)
	_, ok = Move(abc[:1], 0, 0)
	assert.False(t, ok)
	_, ok = Move([]item{}, 0, 0)
	assert.False(t, ok)
	_, ok = Move(abc, 0, 3)
	assert.False(t, ok)
}

func TestRekeyReportsChangedOnly(t *testing.T) {
	moved, _ := Move([]item{{"A", 0}, {"B", 1}, {"C", 2}}, 2, 0)
	out, changed := Rekey(moved)
	assert.Equal(t, []string{"C", "A", "B"}, names(out))
	assert.Equal(t, []int{0, 1, 2}, []int{out[0].key, out[1].key, out[2].key})
	assert.Equal(t, []int{0, 1, 2}, changed)
	assert.True(t, Distinct(out))

	swapped, _ := Move([]item{{"A", 0}, {"B", 1}, {"C", 2}}, 0, 1)
	_, changed = Rekey(swapped)
	assert.Equal(t, []int{0, 1}, changed)
}

func TestRekeyCompactsSparseKeys(t *testing.T) {
	out, changed := Rekey([]item{{"A", -3}, {"B", 7}, {"C", 40}})
	assert.Equal(t, []int{0, 1, 2}, []int{out[0].key, out[1].key, out[2].key})
	assert.Len(t, changed, 3)
}

func TestInsertionKeys(t *testing.T) {
	assert.Equal(t, 0, TopKey[item](nil))
	assert.Equal(t, 0, BottomKey[item](nil))
	items := []item{{"A", 4}, {"B", -2}, {"C", 9}}
	assert.Equal(t, -3, TopKey(items))
	assert.Equal(t, 10, BottomKey(items))
}

func TestSortIsStable(t *testing.T) {
	items := []item{{"C", 2}, {"A", 0}, {"X", 1}, {"B", 1}}
	Sort(items)
	assert.Equal(t, []string{"A", "X", "B", "C"}, names(items))
	assert.False(t, Distinct(items))
}
