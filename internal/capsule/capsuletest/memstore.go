// Package capsuletest provides in-memory backends for capsule tests.
package capsuletest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"timetravel/internal/capsule"
)

var ErrInjected = errors.New("injected failure")

// MemStore is a capsule.Store kept in maps. Fail* fields make the matching
// call return ErrInjected; FailMediaInsertAt fails the n-th (1-based) media row.
type MemStore struct {
	mu sync.Mutex

	Capsules map[uuid.UUID]capsule.Capsule
	Messages []capsule.Message
	Media    []capsule.MediaAsset
	nextID   uint64

	FailInsertCapsule  bool
	FailInsertMessages bool
	FailMediaInsertAt  int
	FailDeleteCapsule  bool
	FailQuery          bool

	mediaInserts int
}

func NewMemStore() *MemStore {
	return &MemStore{Capsules: map[uuid.UUID]capsule.Capsule{}}
}

func (s *MemStore) InsertCapsule(_ context.Context, in capsule.NewCapsule) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertCapsule {
		return uuid.Nil, ErrInjected
	}
	day, err := time.Parse(capsule.DateLayout, in.UnlockAt)
	if err != nil {
		return uuid.Nil, err
	}
	c := capsule.Capsule{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Name:      in.Name,
		Icon:      in.Icon,
		Color:     in.Color,
		UnlockAt:  datatypes.Date(day),
		CreatedAt: time.Now(),
	}
	s.Capsules[c.ID] = c
	return c.ID, nil
}

func (s *MemStore) InsertMessages(_ context.Context, capsuleID uuid.UUID, bodies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertMessages {
		return ErrInjected
	}
	for _, b := range bodies {
		s.nextID++
		s.Messages = append(s.Messages, capsule.Message{ID: s.nextID, CapsuleID: capsuleID, Body: b})
	}
	return nil
}

func (s *MemStore) InsertMediaMetadata(_ context.Context, m capsule.NewMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaInserts++
	if s.FailMediaInsertAt > 0 && s.mediaInserts == s.FailMediaInsertAt {
		return ErrInjected
	}
	s.nextID++
	s.Media = append(s.Media, capsule.MediaAsset{
		ID:          s.nextID,
		CapsuleID:   m.CapsuleID,
		Type:        m.Type,
		Path:        m.Path,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
	})
	return nil
}

func (s *MemStore) DeleteCapsule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeleteCapsule {
		return ErrInjected
	}
	delete(s.Capsules, id)
	// cascade
	s.Messages = dropMessages(s.Messages, id)
	s.Media = dropMedia(s.Media, id)
	return nil
}

func (s *MemStore) DeleteMessagesByCapsule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = dropMessages(s.Messages, id)
	return nil
}

func (s *MemStore) DeleteMediaByCapsule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Media = dropMedia(s.Media, id)
	return nil
}

// PurgeCapsule matches capsule.Repo.PurgeCapsule.
func (s *MemStore) PurgeCapsule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Capsules, id)
	s.Messages = dropMessages(s.Messages, id)
	s.Media = dropMedia(s.Media, id)
	return nil
}

func (s *MemStore) QueryCapsulesForUser(_ context.Context, userID uint64) ([]capsule.RawCapsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailQuery {
		return nil, ErrInjected
	}
	var out []capsule.RawCapsule
	for _, c := range s.Capsules {
		if c.UserID == userID {
			out = append(out, s.raw(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UnlockAt != out[j].UnlockAt {
			return out[i].UnlockAt < out[j].UnlockAt
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) GetCapsuleForUser(_ context.Context, userID uint64, id uuid.UUID) (capsule.RawCapsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Capsules[id]
	if !ok || c.UserID != userID {
		return capsule.RawCapsule{}, capsule.ErrNotFound
	}
	return s.raw(c), nil
}

func (s *MemStore) ListMessages(_ context.Context, capsuleID uuid.UUID) ([]capsule.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capsule.Message
	for _, m := range s.Messages {
		if m.CapsuleID == capsuleID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemStore) ListMedia(_ context.Context, capsuleID uuid.UUID) ([]capsule.MediaAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []capsule.MediaAsset
	for _, m := range s.Media {
		if m.CapsuleID == capsuleID {
			out = append(out, m)
		}
	}
	return out, nil
}

// Put stores a capsule directly, bypassing the creation flow.
func (s *MemStore) Put(c capsule.Capsule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.Capsules[c.ID] = c
}

func (s *MemStore) Counts() (capsules, messages, media int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Capsules), len(s.Messages), len(s.Media)
}

func (s *MemStore) raw(c capsule.Capsule) capsule.RawCapsule {
	r := capsule.RawCapsule{
		ID:        c.ID.String(),
		UserID:    c.UserID,
		Name:      c.Name,
		Icon:      c.Icon,
		Color:     c.Color,
		UnlockAt:  time.Time(c.UnlockAt).Format(capsule.DateLayout),
		CreatedAt: c.CreatedAt,
	}
	for _, m := range s.Messages {
		if m.CapsuleID == c.ID {
			r.MessageCount++
		}
	}
	for _, m := range s.Media {
		if m.CapsuleID != c.ID {
			continue
		}
		if m.Type == capsule.MediaVideo {
			r.VideoCount++
		} else {
			r.ImageCount++
		}
	}
	return r
}

func dropMessages(in []capsule.Message, id uuid.UUID) []capsule.Message {
	out := in[:0]
	for _, m := range in {
		if m.CapsuleID != id {
			out = append(out, m)
		}
	}
	return out
}

func dropMedia(in []capsule.MediaAsset, id uuid.UUID) []capsule.MediaAsset {
	out := in[:0]
	for _, m := range in {
		if m.CapsuleID != id {
			out = append(out, m)
		}
	}
	return out
}

// MemBlobs is a capsule.Blobs kept in a map.
type MemBlobs struct {
	mu      sync.Mutex
	Objects map[string][]byte

	FailUploadAt int // 1-based upload attempt that fails
	FailDelete   bool
	uploads      int
}

func NewMemBlobs() *MemBlobs {
	return &MemBlobs{Objects: map[string][]byte{}}
}

func (b *MemBlobs) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	if b.FailUploadAt > 0 && b.uploads == b.FailUploadAt {
		return ErrInjected
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	b.Objects[key] = buf.Bytes()
	return nil
}

func (b *MemBlobs) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailDelete {
		return ErrInjected
	}
	for _, k := range keys {
		delete(b.Objects, k)
	}
	return nil
}

func (b *MemBlobs) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blobs.test/" + key + "?ttl=" + ttl.String(), nil
}

func (b *MemBlobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Objects)
}

// MemCleanup records queued cleanup work.
type MemCleanup struct {
	mu       sync.Mutex
	Purges   []uuid.UUID
	BlobKeys [][]string
}

func (c *MemCleanup) EnqueueCapsulePurge(_ context.Context, _ uint64, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Purges = append(c.Purges, id)
	return nil
}

func (c *MemCleanup) EnqueueBlobDelete(_ context.Context, _ uint64, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BlobKeys = append(c.BlobKeys, append([]string(nil), keys...))
	return nil
}

// File is an in-memory capsule.MediaSource.
type File struct {
	Name    string
	Type    string
	Data    []byte
	OpenErr error
}

func (f *File) FileName() string    { return f.Name }
func (f *File) ContentType() string { return f.Type }
func (f *File) Size() int64         { return int64(len(f.Data)) }

func (f *File) Open() (io.ReadCloser, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
