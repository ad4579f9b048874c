package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/devhub-api/internal/database"
)

type countingHasher struct {
	calls int
}

func (h *countingHasher) Hash(plaintext string) (string, error) {
	h.calls++
	return "hashed:" + plaintext, nil
}

func newTestRepository(t *testing.T) (*Repository, *countingHasher) {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hasher := &countingHasher{}
	return NewRepository(db, hasher), hasher
}

func TestCreateHashesStagedPasswordOnce(t *testing.T) {
	repo, hasher := newTestRepository(t)
	ctx := context.Background()

	a := NewManual("Ada", "  Ada@Example.COM ", "Secret1!")
	require.NoError(t, repo.Create(ctx, a))

	assert.Equal(t, 1, hasher.calls)
	assert.False(t, a.HasPendingPassword())
	assert.Equal(t, "ada@example.com", a.Email)
	assert.Equal(t, int64(1), a.Revision)
	assert.False(t, a.CredentialChangedAt.IsZero())

	loaded, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	hash, ok := loaded.PasswordHash()
	require.True(t, ok)
	assert.Equal(t, "hashed:Secret1!", hash)
	assert.Equal(t, TypeManual, loaded.Type())
	assert.False(t, loaded.IsVerified)
	assert.Zero(t, loaded.TokenGeneration)

	// saving without a staged password leaves the hash alone
	loaded.Name = "Ada L."
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, 1, hasher.calls)
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, NewManual("Ada", "ada@example.com", "Secret1!")))
	err := repo.Create(ctx, NewManual("Other", "ADA@example.com", "Secret1!"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestCreateFederated(t *testing.T) {
	repo, hasher := newTestRepository(t)
	ctx := context.Background()

	a := NewFederated("Grace", "grace@example.com", "google", "sub-1")
	require.NoError(t, repo.Create(ctx, a))
	assert.Zero(t, hasher.calls)

	loaded, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeFederated, loaded.Type())
	assert.True(t, loaded.IsVerified)
	assert.Equal(t, FederatedCredential{Provider: "google", Subject: "sub-1"}, loaded.Credential)

	_, ok := loaded.PasswordHash()
	assert.False(t, ok)
	assert.ErrorIs(t, loaded.SetPassword("x"), ErrFederatedAccountNoPassword)
}

func TestSaveStampsCredentialChange(t *testing.T) {
	repo, hasher := newTestRepository(t)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return clock })

	a := NewManual("Ada", "ada@example.com", "Secret1!")
	require.NoError(t, repo.Create(ctx, a))

	clock = clock.Add(time.Hour)
	require.NoError(t, a.SetPassword("Secret2!"))
	a.BumpGeneration()
	require.NoError(t, repo.Save(ctx, a))

	assert.Equal(t, 2, hasher.calls)
	assert.Equal(t, int64(2), a.Revision)

	loaded, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	hash, _ := loaded.PasswordHash()
	assert.Equal(t, "hashed:Secret2!", hash)
	assert.Equal(t, int64(1), loaded.TokenGeneration)
	assert.True(t, clock.Equal(loaded.CredentialChangedAt), loaded.CredentialChangedAt)
}

func TestSaveRejectsStaleRevision(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a := NewManual("Ada", "ada@example.com", "Secret1!")
	require.NoError(t, repo.Create(ctx, a))

	first, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)

	first.BumpGeneration()
	require.NoError(t, repo.Save(ctx, first))

	second.BumpGeneration()
	assert.ErrorIs(t, repo.Save(ctx, second), ErrStaleAccount)

	loaded, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.TokenGeneration)
}

func TestSaveMissingAccount(t *testing.T) {
	repo, _ := newTestRepository(t)

	a := NewManual("Ada", "ada@example.com", "Secret1!")
	a.Revision = 1
	assert.ErrorIs(t, repo.Save(context.Background(), a), ErrNotFound)
}

func TestSaveEmailCollision(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, NewManual("Ada", "ada@example.com", "Secret1!")))
	b := NewManual("Bob", "bob@example.com", "Secret1!")
	require.NoError(t, repo.Create(ctx, b))

	b.Email = "ada@example.com"
	assert.ErrorIs(t, repo.Save(ctx, b), ErrDuplicateEmail)
}

func TestTicketsRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a := NewManual("Ada", "ada@example.com", "Secret1!")
	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	a.SetTicket(TicketRegistration, &Ticket{Digest: "reg-digest", ExpiresAt: expires})
	require.NoError(t, repo.Create(ctx, a))

	found, err := repo.FindByTicket(ctx, TicketRegistration, "reg-digest")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	require.NotNil(t, found.Ticket(TicketRegistration))
	assert.True(t, expires.Equal(found.Ticket(TicketRegistration).ExpiresAt))
	assert.Nil(t, found.Ticket(TicketPasswordReset))

	_, err = repo.FindByTicket(ctx, TicketPasswordReset, "reg-digest")
	assert.ErrorIs(t, err, ErrNotFound)

	found.SetTicket(TicketRegistration, nil)
	require.NoError(t, repo.Save(ctx, found))

	_, err = repo.FindByTicket(ctx, TicketRegistration, "reg-digest")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPhotoAndPendingEmailRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a := NewManual("Ada", "ada@example.com", "Secret1!")
	require.NoError(t, repo.Create(ctx, a))

	a.Photo = &PhotoRef{URL: "https://cdn.example.com/avatars/1.jpg", StorageID: "avatars/1.jpg"}
	a.PendingEmail = "new@example.com"
	require.NoError(t, repo.Save(ctx, a))

	loaded, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Photo, loaded.Photo)
	assert.Equal(t, "new@example.com", loaded.PendingEmail)
	assert.Equal(t, "new@example.com", loaded.Summary().PendingEmail)
}

func TestFindByIDNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByProvider(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a := NewFederated("Grace", "grace@example.com", "google", "sub-1")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, NewManual("Ada", "ada@example.com", "Secret1!")))

	loaded, err := repo.FindByProvider(ctx, "google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, loaded.ID)

	_, err = repo.FindByProvider(ctx, "google", "sub-2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByProvider(ctx, "github", "sub-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByProvider(ctx, "google", "")
	assert.ErrorIs(t, err, ErrNotFound)

	// one provider identity links to one account
	err = repo.Create(ctx, NewFederated("Grace Again", "grace2@example.com", "google", "sub-1"))
	assert.Error(t, err)
}
