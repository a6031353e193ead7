package runner

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Summary prints the terminal status/tally summary after a run.
func (r *Runner) Summary(w io.Writer) {
	s := r.stats
	elapsed := r.elapsed
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Requests) / elapsed.Seconds()
	}

	fmt.Fprintf(w, "\nRUN SUMMARY\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Total Duration : %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests       : %d\n", s.Requests)
	fmt.Fprintf(w, "Hard Errors    : %d\n", s.HardErrors)
	fmt.Fprintf(w, "Bytes Received : %d\n", s.Bytes)
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", rps)

	tally := s.Tally()
	if len(tally) > 0 {
		codes := make([]int, 0, len(tally))
		for code := range tally {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		fmt.Fprintf(w, "\nSTATUS TALLY\n")
		for _, code := range codes {
			fmt.Fprintf(w, "   %d x %d\n", tally[code], code)
		}
	}

	if s.Service.TotalCount() > 0 {
		fmt.Fprintf(w, "\nRESPONSE TIMES (ms)\n")
		fmt.Fprintf(w, "   P50 : %.2f\n", s.PercentileMs(50))
		fmt.Fprintf(w, "   P90 : %.2f\n", s.PercentileMs(90))
		fmt.Fprintf(w, "   P99 : %.2f\n", s.PercentileMs(99))
		fmt.Fprintf(w, "   Max : %d\n", s.MaxMs())
	}
	fmt.Fprintf(w, "======================================================================\n")
}
