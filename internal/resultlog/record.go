// Package resultlog is the append-only CSV log of per-instance
// outcomes, written by a dedicated goroutine so log I/O never
// competes with network scheduling.
//
// Row schema (10 columns, 11 in extended mode):
//
//	line in query file, repetition, start, end, d,
//	Ok/Err, status, length, crc, error[, query string]
package resultlog

import (
	"fmt"
	"net/http"
	"time"

	"qreplay/internal/corpus"
)

// Result is the tagged outcome of one executed query instance:
// either a completed HTTP exchange (any status) or a hard error.
type Result struct {
	OK     bool
	Status int    // HTTP status code, when OK
	Length int64  // response body length in bytes, when OK
	CRC    uint64 // streamed body checksum, when OK
	ErrMsg string // when !OK
}

// Ok builds a completed-exchange result.
func Ok(status int, length int64, crc uint64) Result {
	return Result{OK: true, Status: status, Length: length, CRC: crc}
}

// Errf builds a hard-error result.
func Errf(format string, args ...any) Result {
	return Result{ErrMsg: fmt.Sprintf(format, args...)}
}

// Record is one executed instance's outcome. Records are created
// once per completed task, handed to the writer, and never mutated.
type Record struct {
	Ref        corpus.Ref
	Repetition uint32
	Start      float64 // unixtime, seconds
	End        float64 // unixtime, seconds
	Duration   float64 // seconds
	Result     Result
}

// Instance returns the (reference, repetition) identity of the record.
func (r Record) Instance() corpus.Instance {
	return corpus.Instance{Ref: r.Ref, Repetition: r.Repetition}
}

// Unixtime converts a wall-clock time to the log's float-seconds
// representation.
func Unixtime(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// StatusField renders a status code the way it appears in the log,
// e.g. "200 OK". The reader splits on the first space and parses the
// numeric prefix, so unknown codes still round-trip.
func StatusField(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
