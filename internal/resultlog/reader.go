package resultlog

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"qreplay/internal/corpus"
)

// Reader reads back a log written by Writer, reconstructing typed
// records. Parse failures are addressed by file and data-row index.
type Reader struct {
	path string
	f    *os.File
	cr   *csv.Reader
	row  int // 1-based data row index, header excluded
}

// Open opens a log file and consumes its header row.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q for reading", path)
	}
	cr := csv.NewReader(bufio.NewReader(f))
	// Column count is validated per row below, with a
	// row-addressed message.
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		f.Close()
		if err == io.EOF {
			return nil, errors.Errorf("log file %q is empty, missing header", path)
		}
		return nil, errors.Wrapf(err, "reading header of %q", path)
	}
	return &Reader{path: path, f: f, cr: cr}, nil
}

// Read returns the next record, or io.EOF after the last row.
func (r *Reader) Read() (Record, error) {
	fields, err := r.cr.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "reading %q", r.path)
	}
	r.row++
	if len(fields) != NumCols {
		return Record{}, errors.Errorf(
			"invalid number of columns: expected %d, got %d at %q:%d",
			NumCols, len(fields), r.path, r.row)
	}
	rec, err := parseRow(fields)
	return rec, errors.WithMessagef(err, "at %q:%d", r.path, r.row)
}

func (r *Reader) Close() error {
	return r.f.Close()
}

func parseRow(fields []string) (Record, error) {
	var rec Record
	var err error

	if rec.Ref, err = corpus.ParseRef(fields[0]); err != nil {
		return rec, parseErr(fields[0], "line in query file", err)
	}
	rep, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return rec, parseErr(fields[1], "repetition", err)
	}
	rec.Repetition = uint32(rep)
	if rec.Start, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return rec, parseErr(fields[2], "start", err)
	}
	if rec.End, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return rec, parseErr(fields[3], "end", err)
	}
	if rec.Duration, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return rec, parseErr(fields[4], "d", err)
	}

	switch fields[5] {
	case "Ok":
		// The status field holds e.g. "200 OK"; only the numeric
		// prefix matters.
		num, _, found := strings.Cut(fields[6], " ")
		if !found {
			return rec, errors.Errorf("expecting status code number followed by a space: %q", fields[6])
		}
		status, err := strconv.Atoi(num)
		if err != nil {
			return rec, parseErr(num, "HTTP status code", err)
		}
		length, err := strconv.ParseInt(fields[7], 10, 64)
		if err != nil {
			return rec, parseErr(fields[7], "length", err)
		}
		crc, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			return rec, parseErr(fields[8], "crc", err)
		}
		rec.Result = Ok(status, length, crc)
	case "Err":
		rec.Result = Result{ErrMsg: fields[9]}
	default:
		return rec, errors.Errorf("invalid entry in 'Ok/Err' column: %q", fields[5])
	}
	return rec, nil
}

func parseErr(value, what string, err error) error {
	return errors.Wrapf(err, "parsing field value %q as %s", value, what)
}
