package snapshot

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"change-watch/internal/record"
)

// encodeRecords renders a snapshot payload: an indented JSON array of
// records, non-ASCII text kept as is.
func encodeRecords(recs []record.Record) ([]byte, error) {
	if recs == nil {
		recs = []record.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(payload []byte) ([]record.Record, error) {
	var recs []record.Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return recs, nil
}

// idSource hands out lowercase ULIDs that increase even within the same
// millisecond.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(t), s.entropy)
	return strings.ToLower(id.String())
}

// parseID returns the creation time encoded in a snapshot ID.
func parseID(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(strings.ToUpper(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
