package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/driveshare-backend/internal/models"
	"github.com/AnshRaj112/driveshare-backend/internal/repositories/memstore"
	"github.com/AnshRaj112/driveshare-backend/pkg/utils"
)

func TestSaveProfile_CreatesAndIndexesUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: " Alice ", Username: "Alice_1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "Alice_1", p.Username)
	assert.Equal(t, "alice_1", p.UsernameLower)
	assert.False(t, p.OnboardingCompleted)

	uid, err := f.profiles.ResolveUsername(ctx, "ALICE_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	got, err := f.profiles.GetByUsername(ctx, "alice_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestSaveProfile_UsernameTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	_, err := f.profiles.SaveProfile(ctx, "u2", ProfileInput{DisplayName: "Imposter", Username: "ALICE"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	uid, err := f.profiles.ResolveUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = f.profiles.GetProfile(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveProfile_ReassignsUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	p, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "Alice", Username: "alicia"})
	require.NoError(t, err)
	assert.Equal(t, "alicia", p.Username)
	assert.True(t, p.OnboardingCompleted, "onboarding state is kept")

	_, err = f.profiles.ResolveUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	uid, err := f.profiles.ResolveUsername(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	// The freed name can be claimed by someone else.
	_, err = f.profiles.SaveProfile(ctx, "u2", ProfileInput{DisplayName: "Other", Username: "alice"})
	require.NoError(t, err)
}

func TestSaveProfile_FailedReassignmentChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	boom := errors.New("transaction aborted")
	f.store.Fail(memstore.OpUsernamesInsert, boom)

	_, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "Alice", Username: "alicia"})
	assert.ErrorIs(t, err, boom)

	uid, err := f.profiles.ResolveUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = f.profiles.ResolveUsername(ctx, "alicia")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := f.profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
}

func TestSaveProfile_EmptyUsernameKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	p, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "Alice B", Bio: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "hi", p.Bio)

	uid, err := f.profiles.ResolveUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
}

func TestSaveProfile_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.profiles.SaveProfile(ctx, "", ProfileInput{DisplayName: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "A", Username: "no spaces"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "A", CompleteOnboarding: true})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckUsernameAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	ok, err := f.profiles.CheckUsernameAvailable(ctx, "Alice", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.profiles.CheckUsernameAvailable(ctx, "alice", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.profiles.CheckUsernameAvailable(ctx, "bob", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.profiles.CheckUsernameAvailable(ctx, "x", "u2")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRequireOnboarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.profiles.RequireOnboarded(ctx, ""), ErrUnauthenticated)
	assert.ErrorIs(t, f.profiles.RequireOnboarded(ctx, "u1"), ErrOnboardingRequired)

	_, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "A", Username: "alice"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.profiles.RequireOnboarded(ctx, "u1"), ErrOnboardingRequired)

	f.onboard(t, "u1", "alice")
	assert.NoError(t, f.profiles.RequireOnboarded(ctx, "u1"))
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "u1", "alice")

	p, err := f.profiles.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "User alice", p.DisplayName)

	p, err = f.profiles.Lookup(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.PublicProfile{UID: "nobody", DisplayName: UnknownDisplayName}, p)

	f.store.Fail(memstore.OpProfilesGet, errors.New("down"))
	many := f.profiles.LookupMany(ctx, []string{"u1", "u1", "u2"})
	assert.Len(t, many, 2)
	assert.Equal(t, UnknownDisplayName, many["u1"].DisplayName)
}

func TestCompletionScore(t *testing.T) {
	assert.Equal(t, 0, CompletionScore(nil))
	assert.Equal(t, 0, CompletionScore(&models.UserProfile{}))
	assert.Equal(t, 50, CompletionScore(&models.UserProfile{DisplayName: "A", Username: "a", Bio: "b"}))
	assert.Equal(t, 100, CompletionScore(&models.UserProfile{
		DisplayName: "A", Username: "a", PhotoURL: "p", Bio: "b", Location: "l", Phone: "1",
	}))
}

func TestSaveProfile_EncryptsPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	c, err := utils.NewFieldCipher(key)
	require.NoError(t, err)

	// Saved before encryption was turned on.
	_, err = f.profiles.SaveProfile(ctx, "u0", ProfileInput{DisplayName: "Old", Phone: "555-0000"})
	require.NoError(t, err)

	f.profiles.EncryptPhones(c)
	p, err := f.profiles.SaveProfile(ctx, "u1", ProfileInput{DisplayName: "Alice", Phone: " 555-0100 "})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", p.Phone)

	raw, err := f.store.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, raw.Phone, "555")

	got, err := f.profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "555-0100", got.Phone)

	legacy, err := f.profiles.GetProfile(ctx, "u0")
	require.NoError(t, err)
	assert.Equal(t, "555-0000", legacy.Phone)
}
