package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queries(c *Corpus) []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Query(Ref(i))
	}
	return out
}

func TestFromLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"f", []string{"f"}},
		{"\n", []string{""}},
		{"\n\n", []string{"", ""}},
		{"abc\ndef", []string{"abc", "def"}},
		{"abc\ndef\n", []string{"abc", "def"}},
		{"abc\n\ndef\n", []string{"abc", "", "def"}},
	}
	for _, tc := range tests {
		c, err := FromLines(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, queries(c), "input %q", tc.in)
	}
}

func TestFromSingle(t *testing.T) {
	c, err := FromSingle("abc\ndef\n")
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "abc\ndef\n", c.Query(0))
}

func TestRefDisplay(t *testing.T) {
	assert.Equal(t, "1", Ref(0).String())
	assert.Equal(t, uint64(42), Ref(41).Line())
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef("1")
	require.NoError(t, err)
	assert.Equal(t, Ref(0), r)

	r, err = ParseRef("123")
	require.NoError(t, err)
	assert.Equal(t, Ref(122), r)

	_, err = ParseRef("0")
	assert.ErrorContains(t, err, "at least 1")
	_, err = ParseRef("x")
	assert.Error(t, err)
}

func TestLookupOutOfRange(t *testing.T) {
	c, err := FromLines("a\nb\n")
	require.NoError(t, err)

	q, err := c.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "b", q)

	_, err = c.Lookup(2)
	assert.ErrorContains(t, err, "out of range")
}

func TestPlanLength(t *testing.T) {
	c, err := FromLines("a\nb\nc\nd\ne\n")
	require.NoError(t, err)
	for _, repeat := range []int{1, 2, 7} {
		plan := c.Plan(repeat, false, rand.New(rand.NewSource(1)))
		assert.Len(t, plan, c.Len()*repeat)
	}
}

func TestPlanOrderWithoutRandomize(t *testing.T) {
	c, err := FromLines("a\nb\n")
	require.NoError(t, err)
	plan := c.Plan(2, false, rand.New(rand.NewSource(1)))
	want := []Instance{
		{Ref: 0, Repetition: 0},
		{Ref: 1, Repetition: 0},
		{Ref: 0, Repetition: 1},
		{Ref: 1, Repetition: 1},
	}
	assert.Equal(t, want, plan)
}

// Repetition indices must form exactly {0..R-1} per reference in
// final order, no matter how the plan was shuffled.
func TestPlanRepetitionsUnderShuffle(t *testing.T) {
	c, err := FromLines("a\nb\nc\nd\ne\nf\ng\n")
	require.NoError(t, err)

	const repeat = 4
	for seed := int64(1); seed <= 10; seed++ {
		plan := c.Plan(repeat, true, rand.New(rand.NewSource(seed)))
		require.Len(t, plan, c.Len()*repeat)

		next := make(map[Ref]uint32)
		for _, in := range plan {
			assert.Equal(t, next[in.Ref], in.Repetition, "seed %d", seed)
			next[in.Ref]++
		}
		for ref, n := range next {
			assert.Equal(t, uint32(repeat), n, "ref %v, seed %d", ref, seed)
		}
	}
}

func TestArtifactName(t *testing.T) {
	in := Instance{Ref: 0, Repetition: 0}
	assert.Equal(t, "000001", in.ArtifactName(false))
	assert.Equal(t, "000001-000000", in.ArtifactName(true))

	in = Instance{Ref: 41, Repetition: 7}
	assert.Equal(t, "000042", in.ArtifactName(false))
	assert.Equal(t, "000042-000007", in.ArtifactName(true))
}

func TestPreview(t *testing.T) {
	c, err := FromLines("hello\n")
	require.NoError(t, err)
	assert.Equal(t, "line 1 repetition 0: hello", Preview(c, Instance{}))
}
