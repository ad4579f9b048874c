// Package profile applies non-credential edits to the signed-in account:
// display name, email change requests and the avatar photo.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/blob"
	"github.com/redmonkez12/devhub-api/internal/email"
	"github.com/redmonkez12/devhub-api/internal/logging"
	"github.com/redmonkez12/devhub-api/internal/media"
	"github.com/redmonkez12/devhub-api/internal/validator"
	"github.com/redmonkez12/devhub-api/internal/verification"
)

var (
	ErrEmailInUse     = errors.New("email already in use")
	ErrConflict       = errors.New("account was changed by another request, try again")
	ErrStorageFailure = errors.New("photo storage failed")
)

// Notifier sends the email-change messages
type Notifier interface {
	SendEmailChangeConfirmation(ctx context.Context, to, name, token string, ttl time.Duration) error
	SendEmailChangeNotice(ctx context.Context, to, name, newEmail string) error
}

// Update holds the fields a PUT /auth/me may change; nil means untouched
type Update struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

type UpdateResult struct {
	Account *account.Account
	// EmailChangeRequested is set when a confirmation was sent to a new address
	EmailChangeRequested bool
}

type Service struct {
	store    account.Store
	tickets  *verification.Engine
	notifier Notifier
	photos   *media.Processor
	blobs    blob.Store
	validate *validator.Validator
	ttls     verification.TTLs
	logger   *logging.Logger
}

func NewService(
	store account.Store,
	tickets *verification.Engine,
	notifier Notifier,
	photos *media.Processor,
	blobs blob.Store,
	ttls verification.TTLs,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:    store,
		tickets:  tickets,
		notifier: notifier,
		photos:   photos,
		blobs:    blobs,
		validate: validator.New(),
		ttls:     ttls,
		logger:   logger,
	}
}

// Get returns the account with the given id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateProfile renames the account immediately. A new email is only stored
// as pending: a confirmation link goes to the new address and a notice to the
// current one, and the visible email changes when the link is used.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in Update) (*UpdateResult, error) {
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, &validator.ValidationError{Errors: map[string]string{"name": "Name cannot be empty"}}
		}
		a.Name = name
	}

	var emailToken string
	newEmail := ""
	if in.Email != nil {
		newEmail = account.NormalizeEmail(*in.Email)
	}
	requested := newEmail != "" && newEmail != a.Email

	if requested {
		owner, err := s.store.FindByEmail(ctx, newEmail)
		switch {
		case err == nil && owner.ID != a.ID:
			return nil, ErrEmailInUse
		case err != nil && !errors.Is(err, account.ErrNotFound):
			return nil, fmt.Errorf("failed to look up email owner: %w", err)
		}

		a.PendingEmail = newEmail
		emailToken, err = s.tickets.Issue(a, account.TicketEmailChange)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.Save(ctx, a); err != nil {
		if errors.Is(err, account.ErrStaleAccount) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	result := &UpdateResult{Account: a, EmailChangeRequested: requested}
	if !requested {
		return result, nil
	}

	// the old address hears about the change even if the confirmation bounced
	confirmErr := s.notifier.SendEmailChangeConfirmation(ctx, newEmail, a.Name, emailToken, s.ttls.EmailChange)
	if confirmErr != nil {
		s.logger.Warn("failed to send email change confirmation", "account_id", a.ID, "error", confirmErr)
	}
	noticeErr := s.notifier.SendEmailChangeNotice(ctx, a.Email, a.Name, newEmail)
	if noticeErr != nil {
		s.logger.Warn("failed to send email change notice", "account_id", a.ID, "error", noticeErr)
	}

	if err := errors.Join(confirmErr, noticeErr); err != nil {
		return result, fmt.Errorf("%w: %v", email.ErrNotificationFailed, err)
	}
	return result, nil
}

// ConfirmEmailChange consumes an email-change ticket and swaps in the pending
// address. Fails with ErrEmailInUse if someone claimed it in the meantime.
func (s *Service) ConfirmEmailChange(ctx context.Context, token string) (*account.Account, error) {
	a, err := s.tickets.ConfirmEmailChange(ctx, token)
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return a, nil
}

// UpdatePhoto validates, resizes and stores a new avatar, then points the
// account at it. The previous object is removed once the account is saved.
func (s *Service) UpdatePhoto(ctx context.Context, id uuid.UUID, data []byte) (*account.Account, error) {
	img, err := s.photos.Process(data)
	if err != nil {
		return nil, err
	}

	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("avatars/%s/%s%s", a.ID, uuid.NewString(), img.Extension)
	ref, err := s.blobs.Put(ctx, key, img.ContentType, img.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	previous := a.Photo
	a.Photo = &ref
	if err := s.store.Save(ctx, a); err != nil {
		s.deleteBlob(ctx, ref.StorageID)
		if errors.Is(err, account.ErrStaleAccount) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	// provider avatars seeded at federated sign-up have no storage id
	if previous != nil && previous.StorageID != "" {
		s.deleteBlob(ctx, previous.StorageID)
	}

	return a, nil
}

// MaxPhotoBytes is the upload ceiling enforced by UpdatePhoto
func (s *Service) MaxPhotoBytes() int64 { return s.photos.MaxBytes() }

func (s *Service) deleteBlob(ctx context.Context, storageID string) {
	if err := s.blobs.Delete(ctx, storageID); err != nil {
		s.logger.Warn("failed to delete photo object", "storage_id", storageID, "error", err)
	}
}
