package runner

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

type outputKind int

const (
	// outputPrint streams response bodies to stdout.
	outputPrint outputKind = iota
	// outputDir writes one artifact file per instance.
	outputDir
	// outputDrop discards bodies; only length and checksum are kept.
	outputDrop
)

// Output is the disposition of response bodies.
type Output struct {
	kind outputKind
	dir  string
}

// NewOutput resolves the --outdir / --drop pair. Drop wins over
// outdir; with neither, bodies go to stdout.
func NewOutput(outdir string, drop bool) (Output, error) {
	switch {
	case drop:
		return Output{kind: outputDrop}, nil
	case outdir != "":
		if err := os.MkdirAll(outdir, 0o755); err != nil {
			return Output{}, errors.Wrapf(err, "can't create dir or its parents: %q", outdir)
		}
		return Output{kind: outputDir, dir: outdir}, nil
	default:
		return Output{kind: outputPrint}, nil
	}
}

func (o Output) isStdout() bool { return o.kind == outputPrint }
func (o Output) isDrop() bool   { return o.kind == outputDrop }

func (o Output) path(name string) string {
	return filepath.Join(o.dir, name)
}

// finishArtifact applies the post-completion cleanup contract: an
// empty artifact from a 200 exchange is deleted, any other outcome
// keeps the file renamed with the status code as a suffix for
// inspection.
func finishArtifact(path string, size int64, status int) error {
	if size == 0 && status == 200 {
		return errors.Wrapf(os.Remove(path), "removing output file %q", path)
	}
	renamed := path + "." + strconv.Itoa(status)
	return errors.Wrapf(os.Rename(path, renamed), "renaming %q to %q", path, renamed)
}
