package federated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/database"
)

type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "hashed:" + plaintext, nil }

func newTestLinker(t *testing.T) (*Linker, *account.Repository) {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := account.NewRepository(db, plainHasher{})
	return NewLinker(store), store
}

func TestLinkOrCreateCreatesFederatedAccount(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()

	a, err := linker.LinkOrCreate(ctx, Profile{
		Provider:  "google",
		Subject:   "1234",
		Email:     "Grace@Example.com",
		Name:      "Grace Hopper",
		AvatarURL: "https://lh3.example.com/photo.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, account.TypeFederated, a.Type())
	assert.True(t, a.IsVerified)
	assert.Zero(t, a.TokenGeneration)
	assert.Equal(t, "grace@example.com", a.Email)
	require.NotNil(t, a.Photo)
	assert.Equal(t, "https://lh3.example.com/photo.jpg", a.Photo.URL)

	loaded, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	_, hasHash := loaded.PasswordHash()
	assert.False(t, hasHash)
}

func TestLinkOrCreateReturnsExistingFederatedAccount(t *testing.T) {
	linker, _ := newTestLinker(t)
	ctx := context.Background()
	profile := Profile{Provider: "google", Subject: "1234", Email: "grace@example.com", Name: "Grace"}

	first, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)

	profile.Name = "Someone Else"
	second, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Grace", second.Name)
	assert.Equal(t, first.Revision, second.Revision)
}

func TestLinkOrCreateRefusesManualAccount(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()

	manual := account.NewManual("Ann", "ann@x.com", "Secret1!")
	require.NoError(t, store.Create(ctx, manual))

	_, err := linker.LinkOrCreate(ctx, Profile{Provider: "google", Subject: "1", Email: "ann@x.com", Name: "Ann"})
	assert.ErrorIs(t, err, ErrEmailOwnedByManualAccount)

	loaded, err := store.FindByID(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, manual.Revision, loaded.Revision)
	assert.Equal(t, account.TypeManual, loaded.Type())
	assert.False(t, loaded.IsVerified)
}

func TestLinkOrCreateRequiresEmail(t *testing.T) {
	linker, _ := newTestLinker(t)

	_, err := linker.LinkOrCreate(context.Background(), Profile{Provider: "google", Subject: "1", Name: "Nobody"})
	assert.ErrorIs(t, err, ErrMissingProviderEmail)
}

func TestLinkOrCreateFallsBackToEmailLocalPart(t *testing.T) {
	linker, _ := newTestLinker(t)

	a, err := linker.LinkOrCreate(context.Background(), Profile{Provider: "google", Subject: "1", Email: "linus@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "linus", a.Name)
	assert.Nil(t, a.Photo)
}

func TestLinkOrCreateFollowsSubjectAfterEmailChange(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()
	profile := Profile{Provider: "google", Subject: "g-42", Email: "grace@gmail.com", Name: "Grace"}

	first, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)

	moved, err := store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	moved.Email = "grace@work.com"
	require.NoError(t, store.Save(ctx, moved))

	again, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "grace@work.com", again.Email)

	_, err = store.FindByEmail(ctx, "grace@gmail.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestLinkOrCreateKeepsLinkWhenProviderEmailIsTaken(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()
	profile := Profile{Provider: "google", Subject: "g-7", Email: "ann@gmail.com", Name: "Ann"}

	first, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)

	moved, err := store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	moved.Email = "ann@work.com"
	require.NoError(t, store.Save(ctx, moved))

	// the old address now belongs to a password account
	require.NoError(t, store.Create(ctx, account.NewManual("Other Ann", "ann@gmail.com", "Secret1!")))

	again, err := linker.LinkOrCreate(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}
