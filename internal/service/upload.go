package service

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/mailbox-service/internal/domain"
	"github.com/fathima-sithara/mailbox-service/internal/media"
)

// Upload is one image file as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadImages normalises and stores each file, then sends one image message
// referencing all of them. Stored files are removed again if the send fails.
func (s *MessageService) UploadImages(ctx context.Context, sender, receiver string, uploads []Upload) (*domain.Message, error) {
	if err := domain.ValidateParticipants(sender, receiver); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no images attached", domain.ErrValidation)
	}
	if s.maxImages > 0 && len(uploads) > s.maxImages {
		return nil, fmt.Errorf("%w: at most %d images per message", domain.ErrValidation, s.maxImages)
	}

	normalized := make([][]byte, len(uploads))
	for i, u := range uploads {
		if err := media.Validate(u.ContentType, u.Data); err != nil {
			return nil, fmt.Errorf("%s: %w", u.Filename, err)
		}
		data, err := media.Normalize(u.Data, s.maxImageDim)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.Filename, err)
		}
		normalized[i] = data
	}

	refs := make([]string, 0, len(uploads))
	for _, data := range normalized {
		ref, err := s.files.Put(ctx, sender, "image/jpeg", data)
		if err != nil {
			s.discard(ctx, refs)
			return nil, fmt.Errorf("store image: %w: %v", domain.ErrStore, err)
		}
		refs = append(refs, ref)
	}

	m, err := s.SendImages(ctx, sender, receiver, refs)
	if err != nil {
		s.discard(ctx, refs)
		return nil, err
	}
	return m, nil
}

func (s *MessageService) discard(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.files.Delete(ctx, ref); err != nil {
			s.log.Warnw("discard uploaded image", "ref", ref, "err", err)
		}
	}
}
