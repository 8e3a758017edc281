// Package deadletter keeps documents and points the pipeline could not
// store, so they can be inspected or replayed later.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/xhad/vecingest/internal/models"
)

const (
	documentPrefix = "doc/"
	pointPrefix    = "point/"
)

type Kind string

const (
	KindDocument Kind = "document"
	KindPoint    Kind = "point"
)

// Entry is one dead-lettered item. Exactly one of Document and Point is set.
type Entry struct {
	Key      string           `json:"key"`
	Kind     Kind             `json:"kind"`
	Reason   string           `json:"reason"`
	Time     time.Time        `json:"time"`
	Document *models.Document `json:"document,omitempty"`
	Point    *models.Point    `json:"point,omitempty"`
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(strings.TrimSpace(fmt.Sprintf(msg, items...)))
}

type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the dead-letter database at path, creating the directory when
// needed. An empty path keeps everything in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "deadletter")

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dead-letter directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter database: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutDocument records a document that could not be embedded.
func (s *Store) PutDocument(ctx context.Context, doc models.Document, reason error) error {
	entry := Entry{
		Key:      documentPrefix + uuid.NewString(),
		Kind:     KindDocument,
		Reason:   errString(reason),
		Time:     s.now().UTC(),
		Document: &doc,
	}
	return s.put(ctx, entry)
}

// PutPoints records every point of a batch that could not be written.
func (s *Store) PutPoints(ctx context.Context, points []models.Point, reason error) error {
	if len(points) == 0 {
		return nil
	}
	entries := make([]Entry, len(points))
	for i := range points {
		entries[i] = Entry{
			Key:    pointPrefix + points[i].ID,
			Kind:   KindPoint,
			Reason: errString(reason),
			Time:   s.now().UTC(),
			Point:  &points[i],
		}
	}
	return s.put(ctx, entries...)
}

func (s *Store) put(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.Key, err)
		}
		if err := wb.Set([]byte(e.Key), data); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", e.Key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush dead letters: %w", err)
	}

	s.logger.Debug("dead-lettered", "entries", len(entries), "kind", entries[0].Kind)
	return nil
}

// List returns entries of the given kind, or all entries when kind is empty,
// in key order.
func (s *Store) List(ctx context.Context, kind Kind) ([]Entry, error) {
	var prefix []byte
	switch kind {
	case KindDocument:
		prefix = []byte(documentPrefix)
	case KindPoint:
		prefix = []byte(pointPrefix)
	case "":
	default:
		return nil, fmt.Errorf("unknown dead-letter kind %q", kind)
	}

	var entries []Entry
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("failed to decode entry %s: %w", iter.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
