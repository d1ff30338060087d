// Package loader turns a document path into plain text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// maxTextFileSize bounds plain text reads.
const maxTextFileSize = 64 << 20

// Loader reads a document and returns its text page by page. Chunks never
// span a page boundary, so callers split each page on its own.
type Loader interface {
	Load(ctx context.Context, path string) ([]string, error)
}

// FileLoader reads PDFs with ledongthuc/pdf, one text per page, and
// .txt/.md files verbatim as a single page. All failures are reported as
// *errdefs.SourceReadError.
type FileLoader struct{}

// New returns a FileLoader.
func New() *FileLoader {
	return &FileLoader{}
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, &errdefs.SourceReadError{Path: path, Err: errors.New("empty path")}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &errdefs.SourceReadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &errdefs.SourceReadError{Path: path, Err: errors.New("path is a directory")}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := readPDF(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &errdefs.SourceReadError{Path: path, Err: err}
		}
		return pages, nil
	case ".txt", ".md", ".markdown":
		if info.Size() > maxTextFileSize {
			return nil, &errdefs.SourceReadError{Path: path, Err: fmt.Errorf("file too large: %d bytes", info.Size())}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &errdefs.SourceReadError{Path: path, Err: err}
		}
		return []string{string(data)}, nil
	default:
		return nil, &errdefs.SourceReadError{Path: path, Err: ErrUnsupportedFormat}
	}
}

// readPDF extracts the plain text of each page in order. Pages without a
// dictionary come back empty. The pdf package panics on some malformed
// inputs, which are reported as errors.
func readPDF(ctx context.Context, path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting text of page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
