package watch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList_Membership(t *testing.T) {
	l := NewList("w1", "w2")

	assert.True(t, l.Contains("w1"))
	assert.False(t, l.Contains("w3"))
	assert.Equal(t, 2, l.Len())

	l.Add("w3")
	assert.True(t, l.Contains("w3"))

	l.Remove("w1")
	assert.False(t, l.Contains("w1"))
	assert.Equal(t, 2, l.Len())
}

func TestList_FirstMatch(t *testing.T) {
	l := NewList("watched")

	assert.Equal(t, "", l.FirstMatch([]string{"a", "b"}))
	assert.Equal(t, "watched", l.FirstMatch([]string{"a", "watched", "b"}))

	// First in key order wins, not set order.
	l.Add("other")
	assert.Equal(t, "other", l.FirstMatch([]string{"other", "watched"}))
}

func TestList_ConcurrentReadsAndWrites(t *testing.T) {
	l := NewList()
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Add("addr")
				l.Remove("addr")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.FirstMatch([]string{"x", "addr", "y"})
			}
		}()
	}
	wg.Wait()
}

func TestList_Snapshot(t *testing.T) {
	l := NewList("a", "b")
	snap := l.Snapshot()
	assert.ElementsMatch(t, []string{"a", "b"}, snap)

	l.Add("c")
	assert.Len(t, snap, 2)
}
