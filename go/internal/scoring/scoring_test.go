package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreTierBoundaries(t *testing.T) {
	tests := []struct {
		ms   int
		want int
	}{
		{0, 15},
		{2000, 15},
		{3000, 15},
		{3001, 13},
		{5000, 13},
		{5001, 10},
		{15000, 10},
		{20000, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Score(true, tt.ms), "response time %dms", tt.ms)
	}
}

func TestScoreIncorrectIsZero(t *testing.T) {
	for _, ms := range []int{0, 1, 3000, 5000, 15000} {
		assert.Zero(t, Score(false, ms))
	}
}

func TestScoreMonotonic(t *testing.T) {
	prev := Score(true, 0)
	for ms := 0; ms <= 16000; ms += 250 {
		got := Score(true, ms)
		assert.LessOrEqual(t, got, prev, "score increased at %dms", ms)
		prev = got
	}
}

func TestClampResponseTime(t *testing.T) {
	assert.Equal(t, 0, ClampResponseTime(-50, 15000))
	assert.Equal(t, 1200, ClampResponseTime(1200, 15000))
	assert.Equal(t, 15000, ClampResponseTime(99999, 15000))
}

func TestRankTieBreakAndCompetitionRanking(t *testing.T) {
	ranked := Rank([]Entry{
		{PlayerID: "c", TotalScore: 30, CumulativeResponseTimeMs: 1000},
		{PlayerID: "a", TotalScore: 50, CumulativeResponseTimeMs: 4000},
		{PlayerID: "b", TotalScore: 50, CumulativeResponseTimeMs: 4000},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, []int{1, 1, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.Equal(t, "a", ranked[0].PlayerID, "stable for equal keys")
	assert.Equal(t, "b", ranked[1].PlayerID)
	assert.Equal(t, "c", ranked[2].PlayerID)
}

func TestRankFasterWinsOnEqualScore(t *testing.T) {
	ranked := Rank([]Entry{
		{PlayerID: "slow", TotalScore: 25, CumulativeResponseTimeMs: 9000},
		{PlayerID: "fast", TotalScore: 25, CumulativeResponseTimeMs: 3000},
		{PlayerID: "top", TotalScore: 40, CumulativeResponseTimeMs: 12000},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, "top", ranked[0].PlayerID)
	assert.Equal(t, "fast", ranked[1].PlayerID)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, "slow", ranked[2].PlayerID)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	in := []Entry{{PlayerID: "x", TotalScore: 1}, {PlayerID: "y", TotalScore: 2}}
	Rank(in)
	assert.Equal(t, "x", in[0].PlayerID)
	assert.Empty(t, Rank(nil))
}
