package capsule

import (
	"context"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageDTO struct {
	ID      uint64 `json:"id"`
	Message string `json:"message"`
}

type MediaDTO struct {
	ID       uint64    `json:"id"`
	Type     MediaType `json:"type"`
	Path     string    `json:"path"`
	Format   string    `json:"format"`
	FileSize int64     `json:"file_size"`
	FileURL  string    `json:"file_url"`
}

// Content is what an unlocked capsule reveals.
type Content struct {
	Capsule  View         `json:"capsule"`
	Messages []MessageDTO `json:"messages"`
	Media    []MediaDTO   `json:"capsule_media"`
}

// List returns the user's capsules sorted and filtered for display.
func (s *Service) List(ctx context.Context, userID uint64, status StatusFilter, query string) ([]View, error) {
	raws, err := s.Store.QueryCapsulesForUser(ctx, userID)
	if err != nil {
		log.Printf("list capsules user=%d: %v\n", userID, err)
		return nil, err
	}
	return Filter(SortAndClassify(raws, s.now()), status, query), nil
}

func (s *Service) Get(ctx context.Context, userID uint64, id uuid.UUID) (View, error) {
	raw, err := s.Store.GetCapsuleForUser(ctx, userID, id)
	if err != nil {
		return View{}, err
	}
	return Classify(raw, s.now()), nil
}

// Content loads messages and signed media links. Locked capsules return ErrLocked.
func (s *Service) Content(ctx context.Context, userID uint64, id uuid.UUID) (*Content, error) {
	v, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !v.Unlocked {
		return nil, ErrLocked
	}

	msgs, err := s.Store.ListMessages(ctx, id)
	if err != nil {
		log.Printf("capsule content messages capsule=%s: %v\n", id, err)
		return nil, err
	}
	media, err := s.Store.ListMedia(ctx, id)
	if err != nil {
		log.Printf("capsule content media capsule=%s: %v\n", id, err)
		return nil, err
	}

	ttl := s.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	out := &Content{
		Capsule:  v,
		Messages: make([]MessageDTO, 0, len(msgs)),
		Media:    make([]MediaDTO, 0, len(media)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, MessageDTO{ID: m.ID, Message: m.Body})
	}
	for _, m := range media {
		url, err := s.Blobs.SignedURL(ctx, m.Path, ttl)
		if err != nil {
			log.Printf("capsule content sign path=%s: %v\n", m.Path, err)
			return nil, err
		}
		out.Media = append(out.Media, MediaDTO{
			ID:       m.ID,
			Type:     m.Type,
			Path:     m.Path,
			Format:   strings.TrimPrefix(path.Ext(m.Path), "."),
			FileSize: m.SizeBytes,
			FileURL:  url,
		})
	}
	return out, nil
}

// Delete removes a capsule with its rows and files. Files that cannot be
// removed now are queued for the cleanup worker.
func (s *Service) Delete(ctx context.Context, userID uint64, id uuid.UUID) error {
	if _, err := s.Store.GetCapsuleForUser(ctx, userID, id); err != nil {
		return err
	}
	media, err := s.Store.ListMedia(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteCapsule(ctx, id); err != nil {
		return err
	}

	keys := make([]string, 0, len(media))
	for _, m := range media {
		keys = append(keys, m.Path)
	}
	if len(keys) > 0 {
		if err := s.Blobs.Delete(ctx, keys...); err != nil {
			log.Printf("delete capsule blobs capsule=%s: %v\n", id, err)
			s.enqueueBlobDelete(context.WithoutCancel(ctx), userID, keys)
		}
	}
	return nil
}
