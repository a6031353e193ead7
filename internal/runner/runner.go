// Package runner executes a query plan against the endpoint under a
// concurrency cap, streaming every response into the result log.
package runner

import (
	"context"
	"crypto/tls"
	"io"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"qreplay/internal/corpus"
	"qreplay/internal/pool"
	"qreplay/internal/resultlog"
	"qreplay/internal/stats"
)

type Config struct {
	URL         string
	Concurrency int
	Repeat      int
	Randomize   bool
	Seed        int64 // 0 means time-seeded

	Outdir     string
	DropOutput bool

	LogPath      string
	ExtendedLog  bool
	OverwriteLog bool

	CollectErrors bool
	MaxErrors     int

	DryRun      bool
	BenchMemory bool
	Warmup      bool
	Verbose     bool

	Timeout time.Duration
}

type collectedError struct {
	At  time.Time
	Msg string
}

type Runner struct {
	cfg    Config
	corpus *corpus.Corpus
	output Output

	clients *pool.Pool[*http.Client]
	stats   *stats.Stats

	// Deliverable output (dry-run listing, response bodies in print
	// mode); diagnostics go through logrus on stderr.
	Stdout io.Writer

	numErrors int
	collected []collectedError
	elapsed   time.Duration
}

func New(cfg Config, c *corpus.Corpus) (*Runner, error) {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Repeat < 1 {
		cfg.Repeat = 1
	}
	output, err := NewOutput(cfg.Outdir, cfg.DropOutput)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	return &Runner{
		cfg:     cfg,
		corpus:  c,
		output:  output,
		clients: pool.New(func() *http.Client { return newClient(timeout) }),
		stats:   stats.New(),
		Stdout:  os.Stdout,
	}, nil
}

// newClient builds a pooled client handle with keep-alive tuned for
// many requests against a single host.
func newClient(timeout time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &http.Client{
		Timeout:   timeout,
		Transport: t,
	}
}

func (r *Runner) Stats() *stats.Stats { return r.stats }

// Elapsed is the wall-clock duration of the last Run.
func (r *Runner) Elapsed() time.Duration { return r.elapsed }

// showRepetition: artifact names carry the repetition suffix only
// when a non-1 repeat count was requested.
func (r *Runner) showRepetition() bool { return r.cfg.Repeat != 1 }

type completion struct {
	rec resultlog.Record
	// Cleanup failures leave ambiguous on-disk state and abort the
	// run regardless of the error budget.
	fatal error
}

// Run executes the full plan. Admission is submission-bounded: at
// most Concurrency tasks are in flight, and when at capacity the
// loop waits for any one completion before submitting the next plan
// entry. Completion order is unconstrained by submission order.
func (r *Runner) Run(ctx context.Context) error {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	plan := r.corpus.Plan(r.cfg.Repeat, r.cfg.Randomize, rand.New(rand.NewSource(seed)))

	if r.cfg.DryRun {
		for _, in := range plan {
			if _, err := io.WriteString(r.Stdout, corpus.Preview(r.corpus, in)+"\n"); err != nil {
				return errors.Wrap(err, "writing dry-run listing")
			}
		}
		return nil
	}
	if r.cfg.BenchMemory {
		// Keep the materialized plan alive while an external
		// profiler inspects the process.
		time.Sleep(10 * time.Second)
		runtime.KeepAlive(plan)
		return nil
	}
	if r.cfg.Warmup && len(plan) > 0 {
		r.warmup(ctx, plan[0])
	}

	var logw *resultlog.Writer
	if r.cfg.LogPath != "" {
		var extended *corpus.Corpus
		if r.cfg.ExtendedLog {
			extended = r.corpus
		}
		var err error
		logw, err = resultlog.NewWriter(r.cfg.LogPath, r.cfg.OverwriteLog, extended)
		if err != nil {
			return err
		}
	}

	started := time.Now()
	completions := make(chan completion)
	inflight := 0
	var runErr error

	for _, in := range plan {
		if inflight >= r.cfg.Concurrency {
			if r.cfg.Verbose {
				log.Debugf("at capacity, %d of %d in flight", inflight, r.cfg.Concurrency)
			}
			runErr = r.reap(<-completions, logw)
			inflight--
			if runErr != nil {
				break
			}
		}
		in := in
		go func() {
			rec, fatal := r.execute(ctx, in)
			completions <- completion{rec: rec, fatal: fatal}
		}()
		inflight++
	}

	// Drain in-flight tasks even on abort: their outcomes still
	// belong in the log, and an undrained body must never count as
	// success.
	for inflight > 0 {
		if err := r.reap(<-completions, logw); err != nil && runErr == nil {
			runErr = err
		}
		inflight--
	}
	r.elapsed = time.Since(started)

	// The writer is drained and joined exactly once, abort or not;
	// deferred write errors surface only here.
	if logw != nil {
		if err := logw.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	r.emitCollected()
	return runErr
}

// reap consumes one completed task: record to the log, tally, and
// enforce the hard-error budget.
func (r *Runner) reap(c completion, logw *resultlog.Writer) error {
	if logw != nil {
		logw.Send(c.rec)
	}

	res := c.rec.Result
	if res.OK {
		r.stats.RecordExchange(res.Status, res.Length, time.Duration(c.rec.Duration*float64(time.Second)))
	} else {
		r.stats.RecordHardError()
		r.numErrors++
		if r.cfg.CollectErrors {
			r.collected = append(r.collected, collectedError{At: time.Now(), Msg: res.ErrMsg})
		} else {
			log.Errorf("error: %s", res.ErrMsg)
		}
		if r.numErrors > r.cfg.MaxErrors {
			return errors.Errorf("too many errors: %d (budget %d), besides %v tallied statuses",
				r.numErrors, r.cfg.MaxErrors, r.stats.Tally())
		}
	}
	return c.fatal
}

// emitCollected surfaces errors that were buffered by
// --collect-errors, with the time each was observed.
func (r *Runner) emitCollected() {
	for _, ce := range r.collected {
		log.WithField("unixtime", resultlog.Unixtime(ce.At)).Errorf("error: %s", ce.Msg)
	}
}

// warmup fires one disposable request to pre-establish connection
// and DNS state; its result and errors are discarded.
func (r *Runner) warmup(ctx context.Context, in corpus.Instance) {
	client, release := r.clients.Acquire()
	defer release()

	req, err := newQueryRequest(ctx, r.cfg.URL, r.corpus.Query(in.Ref))
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debugf("warmup request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
}

// RunSingle forwards the whole corpus buffer (stdin mode) as one
// query, prints the response, and requires a 200 status.
func (r *Runner) RunSingle(ctx context.Context) error {
	rec, fatal := r.execute(ctx, corpus.Instance{})
	if fatal != nil {
		return fatal
	}
	if !rec.Result.OK {
		return errors.New(rec.Result.ErrMsg)
	}
	if rec.Result.Status != 200 {
		return errors.Errorf("status code was not success: %s", resultlog.StatusField(rec.Result.Status))
	}
	return nil
}
