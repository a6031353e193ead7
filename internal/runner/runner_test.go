package runner

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qreplay/internal/corpus"
	"qreplay/internal/echo"
	"qreplay/internal/reconcile"
	"qreplay/internal/resultlog"
)

func echoHandler(hits *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("echo: "), body...))
	})
}

func mustCorpus(t *testing.T, lines string) *corpus.Corpus {
	t.Helper()
	c, err := corpus.FromLines(lines)
	require.NoError(t, err)
	return c
}

func readLog(t *testing.T, path string) []resultlog.Record {
	t.Helper()
	r, err := resultlog.Open(path)
	require.NoError(t, err)
	defer r.Close()
	var recs []resultlog.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return recs
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
}

func runOnce(t *testing.T, cfg Config, c *corpus.Corpus) error {
	t.Helper()
	r, err := New(cfg, c)
	require.NoError(t, err)
	return r.Run(context.Background())
}

// Two runs against a deterministic endpoint must reconcile with zero
// CRC differences.
func TestRunAndReconcile(t *testing.T) {
	srv := httptest.NewServer(echoHandler(nil))
	defer srv.Close()

	c := mustCorpus(t, "a\nb\nc\n")
	dir := t.TempDir()
	logA := filepath.Join(dir, "a.csv")
	logB := filepath.Join(dir, "b.csv")

	for _, logPath := range []string{logA, logB} {
		cfg := Config{
			URL:         srv.URL,
			Concurrency: 2,
			DropOutput:  true,
			LogPath:     logPath,
			MaxErrors:   5,
		}
		require.NoError(t, runOnce(t, cfg, c))
	}

	recs := readLog(t, logA)
	require.Len(t, recs, 3)
	seen := map[corpus.Ref]bool{}
	for _, rec := range recs {
		assert.True(t, rec.Result.OK)
		assert.Equal(t, 200, rec.Result.Status)
		assert.NotZero(t, rec.Result.Length)
		assert.GreaterOrEqual(t, rec.End, rec.Start)
		seen[rec.Ref] = true
	}
	assert.Len(t, seen, 3)

	a, b, err := reconcile.LoadBoth(context.Background(), logA, logB, nil)
	require.NoError(t, err)
	report, err := reconcile.Compare(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Defects())
	assert.Equal(t, 3, report.Same)
}

func TestRepeatedPlanIsLogged(t *testing.T) {
	srv := httptest.NewServer(echoHandler(nil))
	defer srv.Close()

	c := mustCorpus(t, "a\nb\n")
	logPath := filepath.Join(t.TempDir(), "run.csv")
	cfg := Config{
		URL:         srv.URL,
		Concurrency: 3,
		Repeat:      4,
		Randomize:   true,
		Seed:        7,
		DropOutput:  true,
		LogPath:     logPath,
		MaxErrors:   5,
	}
	require.NoError(t, runOnce(t, cfg, c))

	recs := readLog(t, logPath)
	require.Len(t, recs, 8)
	reps := map[corpus.Ref]map[uint32]bool{}
	for _, rec := range recs {
		if reps[rec.Ref] == nil {
			reps[rec.Ref] = map[uint32]bool{}
		}
		reps[rec.Ref][rec.Repetition] = true
	}
	for ref, set := range reps {
		assert.Len(t, set, 4, "ref %v", ref)
	}
}

// refusedURL points at a port nothing listens on.
func refusedURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr + "/query"
}

func TestErrorBudgetAbortsRun(t *testing.T) {
	c := mustCorpus(t, "a\nb\nc\nd\ne\n")
	logPath := filepath.Join(t.TempDir(), "run.csv")
	cfg := Config{
		URL:           refusedURL(t),
		Concurrency:   1,
		DropOutput:    true,
		LogPath:       logPath,
		MaxErrors:     2,
		CollectErrors: true,
	}
	r, err := New(cfg, c)
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many errors")

	// The run aborted before completing the plan, and the log was
	// still flushed with everything that did complete.
	assert.EqualValues(t, 3, r.Stats().HardErrors)
	recs := readLog(t, logPath)
	assert.Len(t, recs, 3)
	for _, rec := range recs {
		assert.False(t, rec.Result.OK)
		assert.NotEmpty(t, rec.Result.ErrMsg)
	}
}

func TestWithinErrorBudgetCompletes(t *testing.T) {
	c := mustCorpus(t, "a\nb\nc\nd\ne\n")
	cfg := Config{
		URL:           refusedURL(t),
		Concurrency:   2,
		DropOutput:    true,
		MaxErrors:     10,
		CollectErrors: true,
	}
	r, err := New(cfg, c)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.EqualValues(t, 5, r.Stats().HardErrors)
}

func TestDryRunExecutesNothing(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(echoHandler(&hits))
	defer srv.Close()

	c := mustCorpus(t, "a\nb\n")
	r, err := New(Config{URL: srv.URL, DryRun: true, DropOutput: true}, c)
	require.NoError(t, err)
	var out bytes.Buffer
	r.Stdout = &out

	require.NoError(t, r.Run(context.Background()))
	assert.Zero(t, atomic.LoadInt64(&hits))
	assert.Contains(t, out.String(), "line 1 repetition 0: a")
	assert.Contains(t, out.String(), "line 2 repetition 0: b")
}

func TestWarmupFiresExtraRequest(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(echoHandler(&hits))
	defer srv.Close()

	c := mustCorpus(t, "q\n")
	cfg := Config{URL: srv.URL, DropOutput: true, Warmup: true, MaxErrors: 5}
	require.NoError(t, runOnce(t, cfg, c))
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits))
}

func TestOutdirArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch string(body) {
		case "empty":
			w.WriteHeader(http.StatusOK)
		case "miss":
			http.Error(w, "not found", http.StatusNotFound)
		default:
			w.Write(append([]byte("ok: "), body...))
		}
	}))
	defer srv.Close()

	c := mustCorpus(t, "hit\nempty\nmiss\n")
	outdir := filepath.Join(t.TempDir(), "out")
	cfg := Config{URL: srv.URL, Outdir: outdir, MaxErrors: 5}
	require.NoError(t, runOnce(t, cfg, c))

	// Non-empty 200 kept with a status suffix.
	data, err := os.ReadFile(filepath.Join(outdir, "000001.200"))
	require.NoError(t, err)
	assert.Equal(t, "ok: hit", string(data))

	// Empty 200 artifact deleted.
	_, err = os.Stat(filepath.Join(outdir, "000002"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outdir, "000002.200"))
	assert.True(t, os.IsNotExist(err))

	// Non-2xx kept for inspection.
	_, err = os.Stat(filepath.Join(outdir, "000003.404"))
	assert.NoError(t, err)
}

func TestRepeatNamesCarryRepetition(t *testing.T) {
	srv := httptest.NewServer(echoHandler(nil))
	defer srv.Close()

	c := mustCorpus(t, "a\n")
	outdir := filepath.Join(t.TempDir(), "out")
	cfg := Config{URL: srv.URL, Outdir: outdir, Repeat: 2, MaxErrors: 5}
	require.NoError(t, runOnce(t, cfg, c))

	for _, name := range []string{"000001-000000.200", "000001-000001.200"} {
		_, err := os.Stat(filepath.Join(outdir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunSingle(t *testing.T) {
	srv := httptest.NewServer(echoHandler(nil))
	defer srv.Close()

	c, err := corpus.FromSingle("whole stdin blob\n")
	require.NoError(t, err)
	r, err := New(Config{URL: srv.URL}, c)
	require.NoError(t, err)
	var out bytes.Buffer
	r.Stdout = &out

	require.NoError(t, r.RunSingle(context.Background()))
	assert.Equal(t, "echo: whole stdin blob\n", out.String())
}

func TestRunSingleNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := corpus.FromSingle("q")
	require.NoError(t, err)
	r, err := New(Config{URL: srv.URL}, c)
	require.NoError(t, err)
	r.Stdout = io.Discard

	err = r.RunSingle(context.Background())
	assert.ErrorContains(t, err, "status code was not success")
}

// One query repeated twice against a server whose second response
// differs from its first must surface as a non-matching checksum at
// repetition 1.
func TestFlakyServerYieldsIntraRunDefect(t *testing.T) {
	srv := httptest.NewServer(echo.NewServer(echo.Config{Flaky: true}).Handler())
	defer srv.Close()

	c := mustCorpus(t, "q\n")
	logPath := filepath.Join(t.TempDir(), "run.csv")
	cfg := Config{
		URL:         srv.URL + "/query",
		Concurrency: 1,
		Repeat:      2,
		DropOutput:  true,
		LogPath:     logPath,
		MaxErrors:   5,
	}
	require.NoError(t, runOnce(t, cfg, c))

	sums, err := reconcile.LoadSums(logPath, nil)
	require.NoError(t, err)
	require.Len(t, sums.Defects, 1)
	assert.Equal(t, corpus.Instance{Ref: 0, Repetition: 1}, sums.Defects[0].Instance)
}
