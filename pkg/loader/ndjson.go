// Package loader reads documents from newline-delimited JSON, one document
// per line.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/xhad/vecingest/internal/models"
)

// MaxLineSize bounds a single input line.
const MaxLineSize = 16 << 20

type line struct {
	PageContent *string   `json:"page_content"`
	Metadata    *metadata `json:"metadata"`
	Embeddings  []float32 `json:"embeddings"`
}

type metadata struct {
	Source      *string `json:"source"`
	ContentType *string `json:"content_type"`
	Language    *string `json:"language"`
}

type Option func(*options)

type options struct {
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Read parses every well-formed line of r into a Document. Blank, malformed
// and over-long lines are skipped and counted; only a read error aborts.
func Read(r io.Reader, opts ...Option) ([]models.Document, int, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "loader")

	reader := bufio.NewReaderSize(r, 64*1024)

	var (
		docs    []models.Document
		skipped int
		lineNo  int
		buf     []byte
	)
	for {
		var (
			tooLong bool
			err     error
		)
		buf, tooLong, err = readLine(reader, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return docs, skipped, fmt.Errorf("failed to read input at line %d: %w", lineNo+1, err)
		}
		lineNo++

		if tooLong {
			logger.Debug("skipping line", "line", lineNo, "err", "line exceeds max size")
			skipped++
			continue
		}

		raw := bytes.TrimSpace(buf)
		if len(raw) == 0 {
			skipped++
			continue
		}

		doc, err := parseLine(raw)
		if err != nil {
			logger.Debug("skipping line", "line", lineNo, "err", err)
			skipped++
			continue
		}
		docs = append(docs, doc)
	}

	return docs, skipped, nil
}

// readLine reads the next line into buf, without its newline. A line longer
// than MaxLineSize is consumed but not kept, and reported as tooLong. io.EOF
// is only returned once no bytes are left.
func readLine(r *bufio.Reader, buf []byte) (line []byte, tooLong bool, err error) {
	buf = buf[:0]
	read := 0
	for {
		chunk, err := r.ReadSlice('\n')
		read += len(chunk)
		chunk = bytes.TrimSuffix(chunk, []byte("\n"))
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineSize {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			if read == 0 {
				return buf, false, io.EOF
			}
			return buf, tooLong, nil
		case err != nil:
			return buf, false, err
		}
		return buf, tooLong, nil
	}
}

func ReadFile(path string, opts ...Option) ([]models.Document, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	return Read(f, opts...)
}

func parseLine(raw []byte) (models.Document, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return models.Document{}, err
	}

	switch {
	case l.PageContent == nil:
		return models.Document{}, fmt.Errorf("missing page_content")
	case l.Metadata == nil:
		return models.Document{}, fmt.Errorf("missing metadata")
	case l.Metadata.Source == nil:
		return models.Document{}, fmt.Errorf("missing metadata.source")
	case l.Metadata.ContentType == nil:
		return models.Document{}, fmt.Errorf("missing metadata.content_type")
	case l.Metadata.Language == nil:
		return models.Document{}, fmt.Errorf("missing metadata.language")
	}

	embedding := l.Embeddings
	if embedding == nil {
		embedding = []float32{}
	}

	return models.Document{
		Content: *l.PageContent,
		Metadata: models.Metadata{
			Source:      *l.Metadata.Source,
			ContentType: *l.Metadata.ContentType,
			Language:    *l.Metadata.Language,
		},
		Embedding: embedding,
	}, nil
}
