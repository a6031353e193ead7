// Package corpus loads the query corpus and expands it into a run plan.
//
// The corpus is held as one immutable buffer; individual queries are
// offset pairs into it, so a million-line file costs a million small
// spans, never a million string copies.
package corpus

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Ref is a stable 0-based index identifying one corpus entry.
type Ref uint32

// Line is the 1-based line number, which is how a Ref is displayed
// and how it appears in result logs.
func (r Ref) Line() uint64 {
	return uint64(r) + 1
}

func (r Ref) String() string {
	return strconv.FormatUint(r.Line(), 10)
}

// ParseRef parses a 1-based line number back into a Ref.
func ParseRef(s string) (Ref, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parsing line number")
	}
	if n < 1 {
		return 0, errors.Errorf("line number must be at least 1: %d", n)
	}
	if n-1 > math.MaxUint32 {
		return 0, errors.Errorf("line number out of range: %d", n)
	}
	return Ref(n - 1), nil
}

// Instance is one scheduled execution of a corpus entry: which entry,
// and how many times that entry had already been scheduled before it
// in the final plan order.
type Instance struct {
	Ref        Ref
	Repetition uint32
}

// ArtifactName is the output file name for this instance: the
// zero-padded 1-based line number, plus the zero-padded repetition
// when a non-1 repeat count was requested.
func (in Instance) ArtifactName(showRepetition bool) string {
	if showRepetition {
		return fmt.Sprintf("%06d-%06d", in.Ref.Line(), in.Repetition)
	}
	return fmt.Sprintf("%06d", in.Ref.Line())
}

func (in Instance) String() string {
	return fmt.Sprintf("line %s repetition %d", in.Ref, in.Repetition)
}

type span struct {
	start, end int
}

// Corpus is the full ordered set of input query strings for a run.
// It is immutable after construction and safe to share across
// concurrent tasks.
type Corpus struct {
	buf   string
	spans []span
}

// FromFile loads a newline-delimited corpus file.
func FromFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	c, err := FromLines(string(data))
	return c, errors.WithMessagef(err, "parsing %q", path)
}

// FromLines parses a newline-delimited blob into a corpus, one query
// per line. A trailing final newline does not produce an empty last
// query.
func FromLines(s string) (*Corpus, error) {
	c := &Corpus{buf: s}
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			c.spans = append(c.spans, span{start, i})
			start = i + 1
		}
	}
	if start < len(s) {
		c.spans = append(c.spans, span{start, len(s)})
	}
	if err := c.checkSize(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromSingle wraps a whole blob (e.g. all of stdin) as a one-entry
// corpus, newlines included.
func FromSingle(s string) (*Corpus, error) {
	c := &Corpus{buf: s, spans: []span{{0, len(s)}}}
	if err := c.checkSize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Refs must fit a uint32 with one to spare, since logs and artifact
// names speak in 1-based line numbers.
func (c *Corpus) checkSize() error {
	if uint64(len(c.spans))+1 > math.MaxUint32 {
		return errors.New("corpus has >= 2^32 lines")
	}
	return nil
}

// Len is the number of queries in the corpus.
func (c *Corpus) Len() int {
	return len(c.spans)
}

// Query returns the query text for ref as a zero-copy view into the
// corpus buffer. The ref must be in range.
func (c *Corpus) Query(r Ref) string {
	sp := c.spans[r]
	return c.buf[sp.start:sp.end]
}

// Lookup is like Query but returns an error for out-of-range refs,
// for callers fed refs from an external log file.
func (c *Corpus) Lookup(r Ref) (string, error) {
	if int(r) >= len(c.spans) {
		return "", errors.Errorf("query reference for line %s is out of range (corpus has %d queries)", r, len(c.spans))
	}
	return c.Query(r), nil
}

// Plan expands the corpus into repeat x N instances. If randomize is
// set the reference sequence is shuffled before repetition indices
// are assigned; the indices are then assigned by a monotonic
// per-reference counter walked in final order, so each reference's
// repetitions form exactly {0..repeat-1} independent of shuffle
// order.
func (c *Corpus) Plan(repeat int, randomize bool, rng *rand.Rand) []Instance {
	refs := make([]Ref, 0, len(c.spans)*repeat)
	for rep := 0; rep < repeat; rep++ {
		for i := range c.spans {
			refs = append(refs, Ref(i))
		}
	}
	if randomize {
		rng.Shuffle(len(refs), func(i, j int) {
			refs[i], refs[j] = refs[j], refs[i]
		})
	}

	counters := make([]uint32, len(c.spans))
	plan := make([]Instance, len(refs))
	for i, r := range refs {
		plan[i] = Instance{Ref: r, Repetition: counters[r]}
		counters[r]++
	}
	return plan
}

// Preview renders one plan entry for dry-run output.
func Preview(c *Corpus, in Instance) string {
	return in.String() + ": " + c.Query(in.Ref)
}
