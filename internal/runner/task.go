package runner

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"qreplay/internal/checksum"
	"qreplay/internal/corpus"
	"qreplay/internal/resultlog"
)

func newQueryRequest(ctx context.Context, url, query string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	// Should be the default anyway, but not every server plays along
	// without it.
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

// execute runs one plan instance end to end and produces its record.
// Hard errors become Err results, never Go errors; the only error
// return is a fatal artifact-cleanup failure.
func (r *Runner) execute(ctx context.Context, in corpus.Instance) (resultlog.Record, error) {
	start := time.Now()
	res, fatal := r.exchange(ctx, in)
	end := time.Now()

	return resultlog.Record{
		Ref:        in.Ref,
		Repetition: in.Repetition,
		Start:      resultlog.Unixtime(start),
		End:        resultlog.Unixtime(end),
		Duration:   end.Sub(start).Seconds(),
		Result:     res,
	}, fatal
}

func (r *Runner) exchange(ctx context.Context, in corpus.Instance) (resultlog.Result, error) {
	client, release := r.clients.Acquire()
	defer release()

	query := r.corpus.Query(in.Ref)
	req, err := newQueryRequest(ctx, r.cfg.URL, query)
	if err != nil {
		return resultlog.Errf("building request for query %q: %v", query, err), nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return resultlog.Errf("posting the query %q: %v", query, err), nil
	}
	defer resp.Body.Close()
	status := resp.StatusCode
	sum := checksum.New()

	if r.output.isDrop() {
		size, err := io.Copy(sum, resp.Body)
		if err != nil {
			return resultlog.Errf("reading the result from query %q: %v", query, err), nil
		}
		return resultlog.Ok(status, size, sum.Sum()), nil
	}

	if r.output.isStdout() {
		out := r.Stdout
		if out == nil {
			out = os.Stdout
		}
		size, err := io.Copy(io.MultiWriter(out, sum), resp.Body)
		if err != nil {
			return resultlog.Errf("reading the result from query %q: %v", query, err), nil
		}
		if status != 200 {
			// Keep the next response visually separated; bodies of
			// failed statuses rarely end in a newline.
			if _, err := io.WriteString(out, "\n"); err != nil {
				return resultlog.Errf("writing to stdout: %v", err), nil
			}
		}
		return resultlog.Ok(status, size, sum.Sum()), nil
	}

	path := r.output.path(in.ArtifactName(r.showRepetition()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return resultlog.Errf("opening output file %q: %v", path, err), nil
	}
	size, err := io.Copy(io.MultiWriter(f, sum), resp.Body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return resultlog.Errf("writing result of query %q to %q: %v", query, path, err), nil
	}
	if err := finishArtifact(path, size, status); err != nil {
		// Ambiguous on-disk state can't be silently tolerated.
		return resultlog.Errf("cleaning up output file %q: %v", path, err), err
	}
	return resultlog.Ok(status, size, sum.Sum()), nil
}
