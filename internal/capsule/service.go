package capsule

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the record side of the backend.
type Store interface {
	InsertCapsule(ctx context.Context, c NewCapsule) (uuid.UUID, error)
	InsertMessages(ctx context.Context, capsuleID uuid.UUID, bodies []string) error
	InsertMediaMetadata(ctx context.Context, m NewMedia) error
	DeleteCapsule(ctx context.Context, id uuid.UUID) error
	DeleteMessagesByCapsule(ctx context.Context, id uuid.UUID) error
	DeleteMediaByCapsule(ctx context.Context, id uuid.UUID) error

	QueryCapsulesForUser(ctx context.Context, userID uint64) ([]RawCapsule, error)
	GetCapsuleForUser(ctx context.Context, userID uint64, id uuid.UUID) (RawCapsule, error)
	ListMessages(ctx context.Context, capsuleID uuid.UUID) ([]Message, error)
	ListMedia(ctx context.Context, capsuleID uuid.UUID) ([]MediaAsset, error)
}

// Blobs is the object storage side of the backend.
type Blobs interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, keys ...string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanupQueue takes over compensation that could not finish inline.
type CleanupQueue interface {
	EnqueueCapsulePurge(ctx context.Context, userID uint64, capsuleID uuid.UUID) error
	EnqueueBlobDelete(ctx context.Context, userID uint64, keys []string) error
}

const compensationTimeout = 30 * time.Second

type Service struct {
	Store   Store
	Blobs   Blobs
	Cleanup CleanupQueue // optional

	SignedURLTTL time.Duration
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// tx tracks what one CreateCapsule call has written so it can be undone.
type tx struct {
	userID      uint64
	capsuleID   uuid.UUID
	hasCapsule  bool
	hasMessages bool
	hasMedia    bool
	uploaded    []string
}

// CreateCapsule writes the capsule row, its messages, then each media file
// and its metadata row, in that order. If a step fails every earlier write
// of this call is removed, uploaded files included.
func (s *Service) CreateCapsule(ctx context.Context, userID uint64, d *Draft) (uuid.UUID, error) {
	if err := d.Validate(); err != nil {
		return uuid.Nil, err
	}

	t := &tx{userID: userID}

	id, err := s.Store.InsertCapsule(ctx, NewCapsule{
		UserID:   userID,
		Name:     strings.TrimSpace(d.Name),
		Icon:     d.Icon,
		Color:    d.Color,
		UnlockAt: d.unlockDateString(),
	})
	if err != nil {
		log.Printf("create capsule: insert capsule user=%d: %v\n", userID, err)
		return uuid.Nil, &CreateError{Step: StepInsertCapsule, Err: err}
	}
	t.capsuleID = id
	t.hasCapsule = true

	if msgs := d.Messages(); len(msgs) > 0 {
		if err := s.Store.InsertMessages(ctx, id, msgs); err != nil {
			return uuid.Nil, s.abort(ctx, t, StepInsertMessages, err)
		}
		t.hasMessages = true
	}

	for _, item := range d.media {
		if step, err := s.addMedia(ctx, t, item.Source); err != nil {
			return uuid.Nil, s.abort(ctx, t, step, err)
		}
	}

	return id, nil
}

func (s *Service) addMedia(ctx context.Context, t *tx, src MediaSource) (Step, error) {
	if err := ctx.Err(); err != nil {
		return StepUploadMedia, err
	}

	typ := ClassifyMedia(src.ContentType())
	key := s.mediaKey(t, src.FileName())

	r, err := src.Open()
	if err != nil {
		return StepReadMedia, err
	}
	defer r.Close()

	// Tracked before the call: a failed upload can still leave an object.
	t.uploaded = append(t.uploaded, key)
	if err := s.Blobs.Upload(ctx, key, r, src.Size(), src.ContentType()); err != nil {
		return StepUploadMedia, err
	}

	if err := s.Store.InsertMediaMetadata(ctx, NewMedia{
		CapsuleID:   t.capsuleID,
		Type:        typ,
		Path:        key,
		ContentType: src.ContentType(),
		SizeBytes:   src.Size(),
	}); err != nil {
		return StepInsertMedia, err
	}
	t.hasMedia = true
	return "", nil
}

// abort undoes the writes recorded in t and returns the step error.
// It keeps going when the caller's context is cancelled.
func (s *Service) abort(ctx context.Context, t *tx, step Step, cause error) error {
	log.Printf("create capsule: %s capsule=%s: %v\n", step, t.capsuleID, cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if len(t.uploaded) > 0 {
		if err := s.Blobs.Delete(cctx, t.uploaded...); err != nil {
			log.Printf("create capsule: rollback blobs capsule=%s: %v\n", t.capsuleID, err)
			s.enqueueBlobDelete(cctx, t.userID, t.uploaded)
		}
	}

	purged := true
	if t.hasMedia {
		if err := s.Store.DeleteMediaByCapsule(cctx, t.capsuleID); err != nil {
			log.Printf("create capsule: rollback media capsule=%s: %v\n", t.capsuleID, err)
			purged = false
		}
	}
	if t.hasMessages {
		if err := s.Store.DeleteMessagesByCapsule(cctx, t.capsuleID); err != nil {
			log.Printf("create capsule: rollback messages capsule=%s: %v\n", t.capsuleID, err)
			purged = false
		}
	}
	if t.hasCapsule {
		if err := s.Store.DeleteCapsule(cctx, t.capsuleID); err != nil {
			log.Printf("create capsule: rollback capsule=%s: %v\n", t.capsuleID, err)
			purged = false
		}
	}
	if !purged && s.Cleanup != nil {
		if err := s.Cleanup.EnqueueCapsulePurge(cctx, t.userID, t.capsuleID); err != nil {
			log.Printf("create capsule: enqueue purge capsule=%s: %v\n", t.capsuleID, err)
		}
	}

	return &CreateError{Step: step, Err: cause}
}

func (s *Service) enqueueBlobDelete(ctx context.Context, userID uint64, keys []string) {
	if s.Cleanup == nil {
		return
	}
	if err := s.Cleanup.EnqueueBlobDelete(ctx, userID, keys); err != nil {
		log.Printf("enqueue blob delete user=%d: %v\n", userID, err)
	}
}

// mediaKey namespaces a file under its capsule as <millis>-<name>. A name
// already used in the same call gets a numeric suffix.
func (s *Service) mediaKey(t *tx, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = uuid.NewString()
	}
	millis := s.now().UnixMilli()
	key := fmt.Sprintf("%s/%d-%s", t.capsuleID, millis, name)
	for n := 1; slices.Contains(t.uploaded, key); n++ {
		key = fmt.Sprintf("%s/%d-%d-%s", t.capsuleID, millis, n, name)
	}
	return key
}

// ClassifyMedia maps a declared MIME type to a media type.
func ClassifyMedia(contentType string) MediaType {
	if strings.Contains(strings.ToLower(contentType), "video") {
		return MediaVideo
	}
	return MediaImage
}
