package resultlog

import (
	"bufio"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"qreplay/internal/corpus"
)

var header = []string{
	"line in query file",
	"repetition",
	"start",
	"end",
	"d",
	"Ok/Err",
	"status",
	"length",
	"crc",
	"error",
}

// NumCols is the column count of a normal log row; extended logs
// carry one more trailing column with the query text.
const NumCols = 10

// csvLog owns the log file and serializes records to rows. It is
// driven either synchronously (Expand) or from the Writer goroutine.
type csvLog struct {
	path   string
	f      *os.File
	buf    *bufio.Writer
	w      *csv.Writer
	corpus *corpus.Corpus // non-nil in extended mode
}

func createCSV(path string, overwrite bool, extended *corpus.Corpus) (*csvLog, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q for writing", path)
	}

	buf := bufio.NewWriter(f)
	l := &csvLog{path: path, f: f, buf: buf, w: csv.NewWriter(buf), corpus: extended}

	h := header
	if extended != nil {
		h = append(append([]string{}, header...), "query string")
	}
	if err := l.w.Write(h); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "writing to CSV log file %q", path)
	}
	return l, nil
}

func (l *csvLog) writeRow(rec Record) error {
	row := make([]string, NumCols, NumCols+1)
	row[0] = rec.Ref.String()
	row[1] = strconv.FormatUint(uint64(rec.Repetition), 10)
	row[2] = strconv.FormatFloat(rec.Start, 'f', -1, 64)
	row[3] = strconv.FormatFloat(rec.End, 'f', -1, 64)
	row[4] = strconv.FormatFloat(rec.Duration, 'f', -1, 64)
	if rec.Result.OK {
		row[5] = "Ok"
		row[6] = StatusField(rec.Result.Status)
		row[7] = strconv.FormatInt(rec.Result.Length, 10)
		row[8] = strconv.FormatUint(rec.Result.CRC, 10)
	} else {
		row[5] = "Err"
		row[9] = rec.Result.ErrMsg
	}
	if l.corpus != nil {
		q, err := l.corpus.Lookup(rec.Ref)
		if err != nil {
			return err
		}
		row = append(row, q)
	}
	return errors.Wrapf(l.w.Write(row), "writing to CSV log file %q", l.path)
}

func (l *csvLog) close() error {
	l.w.Flush()
	err := l.w.Error()
	if e := l.buf.Flush(); err == nil {
		err = e
	}
	if e := l.f.Close(); err == nil {
		err = e
	}
	return errors.Wrapf(err, "flushing CSV log file %q", l.path)
}

// Writer runs the log file on its own goroutine, fed over a buffered
// channel, so producers never wait on disk. Row order in the file is
// channel-arrival (completion) order.
//
// Writer is a linear resource: Close must be called exactly once,
// even after a failed run, because deferred write and flush errors
// only surface there.
type Writer struct {
	path string
	ch   chan Record
	done chan struct{}
	err  error // set by the goroutine, read after done is closed
}

// NewWriter creates the log file, writes the header, and starts the
// writer goroutine. With a non-nil corpus the log is written in
// extended mode, resolving each record's query text at write time.
func NewWriter(path string, overwrite bool, extended *corpus.Corpus) (*Writer, error) {
	l, err := createCSV(path, overwrite, extended)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		path: path,
		ch:   make(chan Record, 1024),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for rec := range w.ch {
			// Keep draining after a failure so senders never
			// block; only the first error is worth reporting.
			if w.err == nil {
				w.err = l.writeRow(rec)
			}
		}
		if e := l.close(); w.err == nil {
			w.err = e
		}
	}()
	return w, nil
}

// Send hands a record to the writer goroutine. It may block briefly
// when the channel buffer is full, but never on network activity.
func (w *Writer) Send(rec Record) {
	w.ch <- rec
}

// Close drains the channel, joins the goroutine, and returns the
// first deferred write/flush error.
func (w *Writer) Close() error {
	close(w.ch)
	<-w.done
	return errors.WithMessagef(w.err, "CSV log writer for file %q", w.path)
}
