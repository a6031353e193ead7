package resultlog

import (
	"io"

	"qreplay/internal/corpus"
)

// Expand rewrites a normal log as an extended one, appending the
// query-text column resolved from the corpus. This trades log size
// for self-contained readability after the fact.
func Expand(src, dst string, c *corpus.Corpus, overwrite bool) error {
	r, err := Open(src)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := createCSV(dst, overwrite, c)
	if err != nil {
		return err
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			out.close()
			return err
		}
		if err := out.writeRow(rec); err != nil {
			out.close()
			return err
		}
	}
	return out.close()
}
