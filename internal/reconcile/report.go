package reconcile

import (
	"fmt"
	"io"
)

// Render writes the human-readable comparison report. The final
// tally line is the contract consumed by CI greps:
//
//	=> N queries gave CRC differences
func (r *Report) Render(w io.Writer) {
	fmt.Fprintln(w, "query file line\tCRC 1\tCRC 2")
	for _, d := range r.Divergences {
		fmt.Fprintf(w, "%s\t%d\t%d\n", d.Ref, d.A.CRC, d.B.CRC)
	}
	fmt.Fprintf(w, "=> %d queries gave CRC differences\n", len(r.Divergences))
	fmt.Fprintf(w, "%d queries matched, %d ignored\n", r.Same, r.Ignored)

	for _, d := range r.Divergences {
		fmt.Fprintf(w, "line %s: run 1 gave status %d, %d bytes, crc %d; run 2 gave status %d, %d bytes, crc %d\n",
			d.Ref, d.A.Status, d.A.Length, d.A.CRC, d.B.Status, d.B.Length, d.B.CRC)
		if d.Query != "" {
			fmt.Fprintf(w, "line %s query: %s\n", d.Ref, d.Query)
		}
	}

	for _, sums := range []*Sums{r.A, r.B} {
		if len(sums.Defects) == 0 {
			continue
		}
		fmt.Fprintf(w, "Errors in %q:\n", sums.Path)
		fmt.Fprintln(w, "query file line\trepetition\tfirst CRC\tsubsequent CRC")
		for _, d := range sums.Defects {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
				d.Instance.Ref, d.Instance.Repetition, d.First, d.CRC)
		}
	}
}
