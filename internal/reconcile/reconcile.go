// Package reconcile compares result logs by checksum: repeated
// occurrences of a query within one run must agree (intra-run
// stability), and two runs must agree query by query (cross-run
// divergence). Only checksums are compared, never response content.
package reconcile

import (
	"context"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"qreplay/internal/corpus"
	"qreplay/internal/resultlog"
)

// Ignore filters out queries whose text matches a regex. Matching
// needs the corpus, since logs only carry references.
type Ignore struct {
	re     *regexp.Regexp
	corpus *corpus.Corpus
}

func NewIgnore(re *regexp.Regexp, c *corpus.Corpus) *Ignore {
	return &Ignore{re: re, corpus: c}
}

func (ig *Ignore) Match(ref corpus.Ref) (bool, error) {
	q, err := ig.corpus.Lookup(ref)
	if err != nil {
		return false, err
	}
	return ig.re.MatchString(q), nil
}

// ParseIgnoreFlag resolves the --ignore / --ignore-from pair into a
// compiled regex, or nil when neither is given. The file variant is
// trimmed of trailing whitespace before compiling.
func ParseIgnoreFlag(inline, fromFile string) (*regexp.Regexp, error) {
	if inline != "" && fromFile != "" {
		return nil, errors.New("please only give one of --ignore or --ignore-from")
	}
	expr := inline
	if fromFile != "" {
		data, err := os.ReadFile(fromFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ignore file at %q", fromFile)
		}
		expr = strings.TrimRight(string(data), " \t\r\n")
	}
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	return re, errors.Wrapf(err, "parsing ignore regex %q", expr)
}

// Defect is an intra-run instability: a later occurrence of a
// reference whose checksum contradicts the first one.
type Defect struct {
	Instance corpus.Instance
	First    uint64 // checksum at the first occurrence
	CRC      uint64 // conflicting checksum at this occurrence
}

// Sums is one log's table from reference to the result recorded at
// its first non-ignored occurrence, plus a seen counter per
// reference. Hard-error rows carry no checksum and are skipped.
type Sums struct {
	Path    string
	first   map[corpus.Ref]resultlog.Result
	seen    map[corpus.Ref]int
	Defects []Defect
	Stable  int // later occurrences that matched their first
}

func NewSums(path string) *Sums {
	return &Sums{
		Path:  path,
		first: make(map[corpus.Ref]resultlog.Result),
		seen:  make(map[corpus.Ref]int),
	}
}

func (s *Sums) Add(rec resultlog.Record) {
	if !rec.Result.OK {
		return
	}
	ref := rec.Ref
	s.seen[ref]++
	if s.seen[ref] > 1 {
		if rec.Result.CRC == s.first[ref].CRC {
			s.Stable++
		} else {
			s.Defects = append(s.Defects, Defect{
				Instance: rec.Instance(),
				First:    s.first[ref].CRC,
				CRC:      rec.Result.CRC,
			})
		}
		return
	}
	s.first[ref] = rec.Result
}

// Len is the number of distinct references recorded.
func (s *Sums) Len() int {
	return len(s.first)
}

func (s *Sums) result(ref corpus.Ref) (resultlog.Result, bool) {
	res, ok := s.first[ref]
	return res, ok
}

func (s *Sums) maxLine() int {
	max := 0
	for ref := range s.first {
		if int(ref.Line()) > max {
			max = int(ref.Line())
		}
	}
	return max
}

// LoadSums reads one log into a Sums table, skipping ignored
// references.
func LoadSums(path string, ig *Ignore) (*Sums, error) {
	r, err := resultlog.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s := NewSums(path)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		if ig != nil {
			skip, err := ig.Match(rec.Ref)
			if err != nil {
				return nil, errors.WithMessagef(err, "in log %q", path)
			}
			if skip {
				continue
			}
		}
		s.Add(rec)
	}
}

// LoadBoth loads the two logs concurrently.
func LoadBoth(ctx context.Context, pathA, pathB string, ig *Ignore) (*Sums, *Sums, error) {
	var a, b *Sums
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = LoadSums(pathA, ig)
		return err
	})
	g.Go(func() (err error) {
		b, err = LoadSums(pathB, ig)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// Divergence is a cross-run disagreement for one reference.
type Divergence struct {
	Ref   corpus.Ref
	A, B  resultlog.Result
	Query string // resolved from the corpus when available
}

// Report is the outcome of comparing two logs.
type Report struct {
	A, B        *Sums
	Same        int // present in both with equal checksums
	Ignored     int // present in neither log (filtered or never run)
	Divergences []Divergence
}

// Defects counts everything that forces a failure exit: cross-run
// divergences plus both logs' intra-run instabilities.
func (r *Report) Defects() int {
	return len(r.Divergences) + len(r.A.Defects) + len(r.B.Defects)
}

// Compare walks the corpus reference range and classifies each
// reference. A reference present in exactly one log makes the two
// logs structurally incomparable and is an error, not a finding. The
// corpus is optional; without it the range defaults to the highest
// reference either log recorded, and divergences carry no query
// text.
func Compare(a, b *Sums, c *corpus.Corpus) (*Report, error) {
	n := 0
	if c != nil {
		n = c.Len()
	} else if n = a.maxLine(); b.maxLine() > n {
		n = b.maxLine()
	}

	rep := &Report{A: a, B: b}
	for i := 0; i < n; i++ {
		ref := corpus.Ref(i)
		ra, inA := a.result(ref)
		rb, inB := b.result(ref)
		switch {
		case inA && inB:
			if ra.CRC == rb.CRC {
				rep.Same++
			} else {
				d := Divergence{Ref: ref, A: ra, B: rb}
				if c != nil {
					d.Query = c.Query(ref)
				}
				rep.Divergences = append(rep.Divergences, d)
			}
		case !inA && !inB:
			rep.Ignored++
		case inA:
			return nil, errors.Errorf(
				"query line %s is present in %q but not in %q", ref, a.Path, b.Path)
		default:
			return nil, errors.Errorf(
				"query line %s is present in %q but not in %q", ref, b.Path, a.Path)
		}
	}
	sortDefects(a.Defects)
	sortDefects(b.Defects)
	return rep, nil
}

func sortDefects(ds []Defect) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i].Instance, ds[j].Instance
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		return a.Repetition < b.Repetition
	})
}
