package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const fileTimeLayout = "20060102_150405"

// Snapshot files are named <source>_<YYYYMMDD_HHMMSS>_<ulid>.json. The suffix
// is matched strictly so that source "a" never picks up files of "a_b".
var reFileSuffix = regexp.MustCompile(`^\d{8}_\d{6}_([0-9a-z]{26})\.json$`)

type fileBackend struct {
	dir string
}

func newFileBackend(dir string) (*fileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create history directory: %w", err)
	}
	return &fileBackend{dir: dir}, nil
}

func snapshotFileName(source, id string, createdAt time.Time) string {
	return source + "_" + createdAt.UTC().Format(fileTimeLayout) + "_" + id + ".json"
}

// parseFileName returns the snapshot ID when name belongs to source.
func parseFileName(source, name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, source+"_")
	if !ok {
		return "", false
	}
	m := reFileSuffix.FindStringSubmatch(rest)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// put writes the payload atomically: temp file in the same directory, fsync,
// then rename, so readers never observe a partial snapshot.
func (f *fileBackend) put(_ context.Context, source, id string, createdAt time.Time, payload []byte) (Info, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return Info{}, err
	}
	name := snapshotFileName(source, id, createdAt)
	final := filepath.Join(f.dir, name)
	if _, err := os.Stat(final); err == nil {
		return Info{}, fmt.Errorf("snapshot file %s already exists", name)
	}

	tmp, fh, err := createTempFile(f.dir, name)
	if err != nil {
		return Info{}, err
	}
	if _, err := fh.Write(payload); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return Info{}, err
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return Info{}, err
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return Info{}, err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return Info{}, err
	}

	fi, err := os.Stat(final)
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:        id,
		Source:    source,
		CreatedAt: createdAt,
		ModTime:   fi.ModTime(),
		Size:      fi.Size(),
		Location:  final,
	}, nil
}

func (f *fileBackend) list(_ context.Context, source string) ([]Info, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var infos []Info
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, ok := parseFileName(source, e.Name())
		if !ok {
			continue
		}
		created, err := parseID(id)
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		infos = append(infos, Info{
			ID:        id,
			Source:    source,
			CreatedAt: created,
			ModTime:   fi.ModTime(),
			Size:      fi.Size(),
			Location:  filepath.Join(f.dir, e.Name()),
		})
	}
	return infos, nil
}

func (f *fileBackend) read(_ context.Context, info Info) ([]byte, error) {
	return os.ReadFile(info.Location)
}

func (f *fileBackend) remove(_ context.Context, info Info) error {
	err := os.Remove(info.Location)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *fileBackend) close() error { return nil }

// createTempFile creates ".tmp-<base>-<rand>" in dir. Such names never match
// a snapshot file name.
func createTempFile(dir, base string) (string, *os.File, error) {
	fh, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return fh.Name(), fh, nil
}
