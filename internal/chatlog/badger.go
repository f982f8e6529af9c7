package chatlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var messagePrefix = []byte("msg/")

// BadgerSink stores each message under a time-ordered key so Recent can walk
// the log backwards without an index.
type BadgerSink struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadgerSink opens (or creates) a badger database at path. An empty path
// keeps the database in memory.
func OpenBadgerSink(path string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger message log: %w", err)
	}
	return &BadgerSink{db: db, now: time.Now}, nil
}

func (s *BadgerSink) Append(text string) error {
	id := uuid.New()
	entry := Entry{ID: id.String(), At: s.now().UTC(), Text: text}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode message log entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.At, id), value)
	})
	if err != nil {
		return fmt.Errorf("append to message log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, oldest first.
func (s *BadgerSink) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = messagePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, messagePrefix...), 0xFF)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry Entry
			if err := json.Unmarshal(value, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}
	return lo.Reverse(entries), nil
}

func (s *BadgerSink) Close() error {
	return s.db.Close()
}

func entryKey(at time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(messagePrefix)+8+len(id))
	key = append(key, messagePrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, id[:]...)
}
