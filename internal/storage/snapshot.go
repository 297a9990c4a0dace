package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opendreams/opendreams/internal/identity"
)

// SnapshotVersion is written with every snapshot. Data carrying any other
// version is ignored on load.
const SnapshotVersion = 0

// Snapshot is the persisted projection of the session state: the signed-in
// user and session, nothing else.
type Snapshot struct {
	User    *identity.User
	Session *identity.Session
}

// Complete reports whether both halves of the pair are present.
func (s Snapshot) Complete() bool {
	return s.User != nil && s.Session != nil
}

// envelope is the stored layout: {"state":{"user":..,"session":..},"version":0}.
type envelope struct {
	State   snapshotState `json:"state"`
	Version int           `json:"version"`
}

type snapshotState struct {
	User    *identity.User    `json:"user"`
	Session *identity.Session `json:"session"`
}

// EncodeSnapshot serializes a snapshot into the stored layout.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(envelope{
		State:   snapshotState{User: s.User, Session: s.Session},
		Version: SnapshotVersion,
	})
}

// DecodeSnapshot parses the stored layout. It fails on malformed JSON or a
// version this build does not understand.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if env.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", env.Version)
	}
	return Snapshot{User: env.State.User, Session: env.State.Session}, nil
}

// SnapshotStore reads and writes the auth snapshot under a fixed key.
type SnapshotStore struct {
	backend Backend
	key     string
	sealer  *Sealer
}

// SnapshotOption configures a SnapshotStore.
type SnapshotOption func(*SnapshotStore)

// WithSealer encrypts the snapshot at rest.
func WithSealer(s *Sealer) SnapshotOption {
	return func(st *SnapshotStore) {
		st.sealer = s
	}
}

// NewSnapshotStore creates a snapshot store over backend, keyed by key
// (normally "opendreams-auth-storage").
func NewSnapshotStore(backend Backend, key string, opts ...SnapshotOption) *SnapshotStore {
	s := &SnapshotStore{backend: backend, key: key}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the key the snapshot is stored under.
func (s *SnapshotStore) Key() string {
	return s.key
}

// Save persists snap, replacing any previous snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	data, err = s.sealer.seal(data)
	if err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}

	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. Missing, corrupt, foreign-version or
// unsealable data yields an empty snapshot and a nil error; only a backend
// failure is returned as an error.
func (s *SnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	if data == nil {
		return Snapshot{}, nil
	}

	plain, err := s.sealer.open(data)
	if err != nil {
		slog.Warn("discarding unreadable auth snapshot",
			slog.String("key", s.key),
			slog.Any("error", err),
		)
		return Snapshot{}, nil
	}

	snap, err := DecodeSnapshot(plain)
	if err != nil {
		slog.Warn("discarding corrupt auth snapshot",
			slog.String("key", s.key),
			slog.Any("error", err),
		)
		return Snapshot{}, nil
	}
	return snap, nil
}

// Clear removes the stored snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	return nil
}
