package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankBreaksTiesByKey(t *testing.T) {
	counts := map[string]int64{"US": 5, "IN": 5, "UK": 3}
	want := []Ranked{{Key: "IN", Count: 5}, {Key: "US", Count: 5}, {Key: "UK", Count: 3}}

	for i := 0; i < 20; i++ {
		assert.Equal(t, want, Rank(counts, TopN))
	}
}

func TestRankTruncates(t *testing.T) {
	counts := map[string]int64{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6, "g": 7}

	top := Rank(counts, TopN)
	assert.Len(t, top, 5)
	assert.Equal(t, "g", top[0].Key)
	assert.Equal(t, "c", top[4].Key)

	assert.Len(t, Rank(counts, 0), 7)
	assert.Empty(t, Rank(nil, TopN))
}
