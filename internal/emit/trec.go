package emit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/ranking"
)

// WriteTREC writes one line per ranked document in the six-column TREC run
// format: query id, the literal Q0, document id, 1-based rank, score with
// six decimals and the run tag.
func WriteTREC(w io.Writer, runTag string, results []ranking.QueryResult) error {
	bw := bufio.NewWriter(w)
	for _, qr := range results {
		for i, doc := range qr.Docs {
			if _, err := fmt.Fprintf(bw, "%s Q0 %s %d %.6f %s\n", qr.QueryID, doc.DocID, i+1, doc.Score, runTag); err != nil {
				return fmt.Errorf("writing run line: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing run: %w", err)
	}
	return nil
}

// FileSink writes the run file atomically at path.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Name() string { return "file" }

func (f *FileSink) Emit(_ context.Context, run Run) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp results file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTREC(tmp, run.Tag, run.Results); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing results: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("renaming results file: %w", err)
	}
	return nil
}

func (f *FileSink) Close() error { return nil }

// WriterSink writes the run to an arbitrary writer, typically stdout.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "writer" }

func (s *WriterSink) Emit(_ context.Context, run Run) error {
	return WriteTREC(s.w, run.Tag, run.Results)
}

func (s *WriterSink) Close() error { return nil }
