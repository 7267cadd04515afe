package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"change-watch/internal/logger"
)

const badgerKeyPrefix = "snap/"

// badgerBackend keeps every snapshot under snap/<source>/<ulid>. A ULID
// sorts by creation time, so the modification time of a snapshot is the
// time encoded in its key.
type badgerBackend struct {
	db  *badger.DB
	dir string
}

func newBadgerBackend(dir string, log logger.Logger) (*badgerBackend, error) {
	path := filepath.Join(dir, "badger")
	opts := badger.DefaultOptions(path).
		WithLogger(&badgerLogger{log: log}).
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open badger: %w", err)
	}
	return &badgerBackend{db: db, dir: path}, nil
}

func sourcePrefix(source string) []byte {
	return []byte(badgerKeyPrefix + source + "/")
}

func (b *badgerBackend) put(_ context.Context, source, id string, createdAt time.Time, payload []byte) (Info, error) {
	key := append(sourcePrefix(source), id...)
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("snapshot %s already exists", id)
		}
		return txn.Set(key, payload)
	})
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:        id,
		Source:    source,
		CreatedAt: createdAt,
		ModTime:   createdAt,
		Size:      int64(len(payload)),
		Location:  b.location(key),
	}, nil
}

// list walks the source prefix from the newest key backwards.
func (b *badgerBackend) list(ctx context.Context, source string) ([]Info, error) {
	prefix := sourcePrefix(source)
	var infos []Info
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			id := string(key[len(prefix):])
			created, err := parseID(id)
			if err != nil {
				continue
			}
			infos = append(infos, Info{
				ID:        id,
				Source:    source,
				CreatedAt: created,
				ModTime:   created,
				Size:      item.ValueSize(),
				Location:  b.location(key),
			})
		}
		return nil
	})
	return infos, err
}

func (b *badgerBackend) read(_ context.Context, info Info) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sourceKey(info))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (b *badgerBackend) remove(_ context.Context, info Info) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sourceKey(info))
	})
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}

func (b *badgerBackend) location(key []byte) string {
	return b.dir + "#" + string(key)
}

func sourceKey(info Info) []byte {
	return append(sourcePrefix(info.Source), info.ID...)
}

// badgerLogger routes badger's own logging into the component logger.
// Badger is chatty at info level, so info goes to debug.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(badgerMsg(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(badgerMsg(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(badgerMsg(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(badgerMsg(format, args...))
}

func badgerMsg(format string, args ...any) string {
	return "badger: " + strings.TrimSpace(fmt.Sprintf(format, args...))
}
