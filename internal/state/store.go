package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"main/internal/errors"
)

var (
	ErrNoCheckpoint       = errors.New("no checkpoint found")
	ErrCheckpointCorrupt  = errors.New("checkpoint blob does not match manifest hash")
	ErrUnknownComponent   = errors.New("component missing from checkpoint")
	ErrDuplicateComponent = errors.New("duplicate persist key")
)

// Persistable is a component that can checkpoint itself. Blobs are opaque
// to the store; each component owns its own encoding.
type Persistable interface {
	PersistKey() string
	PersistState() ([]byte, error)
	RestoreState(data []byte) error
}

// Manifest indexes the blobs of one checkpoint. It is the only part of
// the checkpoint written as JSON, so a run can be inspected by hand.
type Manifest struct {
	RunID   string            `json:"runId"`
	SavedAt time.Time         `json:"savedAt"`
	Cursor  string            `json:"cursor"`
	Hashes  map[string]string `json:"hashes"`
}

const manifestName = "manifest.json"

// Store checkpoints component state under one directory: a JSON manifest
// plus one blob file per component. Blobs whose content hash is unchanged
// since the last save are not rewritten.
type Store struct {
	dir      string
	manifest Manifest
}

// NewStore opens (or initializes) the checkpoint directory. A fresh
// directory gets a new run id; an existing manifest is adopted so a
// resumed run keeps the id of the run it continues.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create checkpoint dir %s", dir)
	}
	s := &Store{dir: dir, manifest: Manifest{
		RunID:  uuid.NewString(),
		Hashes: make(map[string]string),
	}}

	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrapf(err, "read checkpoint manifest")
	}
	if err := json.Unmarshal(data, &s.manifest); err != nil {
		return nil, errors.Wrapf(err, "decode checkpoint manifest")
	}
	if s.manifest.Hashes == nil {
		s.manifest.Hashes = make(map[string]string)
	}
	return s, nil
}

func (s *Store) RunID() string { return s.manifest.RunID }

// Cursor returns the replay position recorded by the last save.
func (s *Store) Cursor() string { return s.manifest.Cursor }

// HasCheckpoint reports whether a previous save exists to resume from.
func (s *Store) HasCheckpoint() bool { return !s.manifest.SavedAt.IsZero() }

// Save checkpoints every component and the replay cursor, then rewrites
// the manifest. Unchanged blobs are skipped.
func (s *Store) Save(cursor string, components ...Persistable) error {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		key := c.PersistKey()
		if seen[key] {
			return errors.Wrapf(ErrDuplicateComponent, "key %s", key)
		}
		seen[key] = true

		blob, err := c.PersistState()
		if err != nil {
			return errors.Wrapf(err, "persist %s", key)
		}
		sum := sha256.Sum256(blob)
		hash := hex.EncodeToString(sum[:])
		if s.manifest.Hashes[key] == hash {
			continue
		}
		if err := os.WriteFile(s.blobPath(key), blob, 0o644); err != nil {
			return errors.Wrapf(err, "write checkpoint blob %s", key)
		}
		s.manifest.Hashes[key] = hash
	}

	s.manifest.Cursor = cursor
	s.manifest.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode checkpoint manifest")
	}
	return os.WriteFile(filepath.Join(s.dir, manifestName), data, 0o644)
}

// Restore loads every component's blob, verifies it against the manifest
// hash and hands it to the component.
func (s *Store) Restore(components ...Persistable) error {
	if !s.HasCheckpoint() {
		return ErrNoCheckpoint
	}
	for _, c := range components {
		key := c.PersistKey()
		want, ok := s.manifest.Hashes[key]
		if !ok {
			return errors.Wrapf(ErrUnknownComponent, "key %s", key)
		}
		blob, err := os.ReadFile(s.blobPath(key))
		if err != nil {
			return errors.Wrapf(err, "read checkpoint blob %s", key)
		}
		sum := sha256.Sum256(blob)
		if hex.EncodeToString(sum[:]) != want {
			return errors.Wrapf(ErrCheckpointCorrupt, "key %s", key)
		}
		if err := c.RestoreState(blob); err != nil {
			return errors.Wrapf(err, "restore %s", key)
		}
	}
	return nil
}

func (s *Store) blobPath(key string) string {
	return filepath.Join(s.dir, key+".state")
}
