// Package store persists presence snapshots to a single JSON file with a sibling ".bak"
// copy.
//
// The on-disk document is a versioned envelope:
//
//	{"version": 1, "saved_at": "...", "participants": {"ada": {...}}}
//
// Unknown fields are ignored when decoding, so later versions can add fields without
// breaking older readers of the same major version. Files from a newer schema version, or
// without a version at all, are rejected.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/presence"
	"github.com/onnwee/pomodorotteux/telemetry"
)

// SchemaVersion is the version written by Save.
const SchemaVersion = 1

// BackupSuffix is appended to the store path for the backup copy.
const BackupSuffix = ".bak"

type document struct {
	Version      int                             `json:"version"`
	SavedAt      time.Time                       `json:"saved_at"`
	Participants map[string]presence.Participant `json:"participants"`
}

// Store reads and writes the snapshot file at Path. Writes are serialized.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// New returns a store for path.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With(slog.String("component", "store")),
		now:    time.Now,
	}
}

// Path returns the primary snapshot path.
func (s *Store) Path() string { return s.path }

// BackupPath returns the backup snapshot path.
func (s *Store) BackupPath() string { return s.path + BackupSuffix }

// Load ensures the store directory exists and reads the snapshot. A missing file yields an
// empty snapshot. Every participant comes back disconnected. When a file was read, a backup
// copy of it is written before returning.
func (s *Store) Load() (presence.Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, errs.Persistence("create store dir", err)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no snapshot found, starting empty", slog.String("path", s.path))
		return presence.Snapshot{}, nil
	}
	if err != nil {
		return nil, errs.Persistence("read snapshot", err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, errs.Persistence("decode snapshot "+s.path, err)
	}
	snap = snap.Disconnected()
	s.logger.Info("snapshot loaded", slog.String("path", s.path), slog.Int("participants", len(snap)))

	if err := s.Save(snap, true); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save writes snap to the primary path, or to the backup path when isBackup is set. The
// write goes to a temporary file in the same directory which is then renamed over the
// target. Failures are not retried.
func (s *Store) Save(snap presence.Snapshot, isBackup bool) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path
	if isBackup {
		target = s.BackupPath()
	}

	_, span := telemetry.StartSpan(context.Background(), "store.save",
		attribute.String("store.path", target),
		attribute.Bool("store.backup", isBackup),
		attribute.Int("store.participants", len(snap)),
	)
	defer func() {
		telemetry.CountStoreWrite(err)
		telemetry.EndSpan(span, err)
	}()

	telemetry.TimeFunc(telemetry.StoreWriteDuration, func() {
		err = s.write(target, snap)
	})
	return err
}

func (s *Store) write(target string, snap presence.Snapshot) error {
	data, err := encode(snap, s.now())
	if err != nil {
		return errs.Persistence("encode snapshot", err)
	}
	if err := writeAtomic(target, data); err != nil {
		s.logger.Error("snapshot write failed", slog.String("path", target), slog.Any("err", err))
		return errs.Persistence("write snapshot "+target, err)
	}
	s.logger.Debug("snapshot written", slog.String("path", target), slog.Int("bytes", len(data)))
	return nil
}

func encode(snap presence.Snapshot, now time.Time) ([]byte, error) {
	doc := document{
		Version:      SchemaVersion,
		SavedAt:      now.UTC(),
		Participants: map[string]presence.Participant(snap),
	}
	if doc.Participants == nil {
		doc.Participants = map[string]presence.Participant{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) (presence.Snapshot, error) {
	var doc document
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, err
	}
	switch {
	case doc.Version == 0:
		return nil, fmt.Errorf("missing schema version")
	case doc.Version > SchemaVersion:
		return nil, fmt.Errorf("schema version %d is newer than supported version %d", doc.Version, SchemaVersion)
	}
	snap := make(presence.Snapshot, len(doc.Participants))
	for pseudo, p := range doc.Participants {
		if p.PendingCount < 0 || p.InitialCount < 0 {
			return nil, fmt.Errorf("participant %q has a negative count", pseudo)
		}
		p.Pseudo = pseudo
		snap[pseudo] = p
	}
	return snap, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
