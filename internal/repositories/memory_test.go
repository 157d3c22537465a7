package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vidfriends/accounts/internal/models"
)

func newTestAccount(handle string) models.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Account{
		ID:           uuid.NewString(),
		Handle:       handle,
		Email:        handle + "@example.com",
		FullName:     "Test " + handle,
		PasswordHash: "password-hash",
		Avatar:       "https://cdn.example.com/" + handle + ".png",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestVideo(ownerID, title string) models.Video {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Video{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        title,
		Description:  title + " description",
		VideoURL:     "https://cdn.example.com/" + title + ".mp4",
		ThumbnailURL: "https://cdn.example.com/" + title + ".jpg",
		Duration:     12.5,
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryAccounts_CreateRejectsCaseInsensitiveDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	require.NoError(t, store.Accounts.Create(ctx, newTestAccount("alice")))

	dupHandle := newTestAccount("ALICE")
	dupHandle.Email = "someone-else@example.com"
	require.ErrorIs(t, store.Accounts.Create(ctx, dupHandle), ErrConflict)

	dupEmail := newTestAccount("alice2")
	dupEmail.Email = "Alice@Example.com"
	require.ErrorIs(t, store.Accounts.Create(ctx, dupEmail), ErrConflict)

	found, err := store.Accounts.FindByHandle(ctx, "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice", found.Handle)

	_, err = store.Accounts.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAccounts_UpdateDetailsConflictsOnEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	alice := newTestAccount("alice")
	bob := newTestAccount("bob")
	require.NoError(t, store.Accounts.Create(ctx, alice))
	require.NoError(t, store.Accounts.Create(ctx, bob))

	require.ErrorIs(t, store.Accounts.UpdateDetails(ctx, alice.ID, "Alice", bob.Email), ErrConflict)
	require.NoError(t, store.Accounts.UpdateDetails(ctx, alice.ID, "Alice L", alice.Email))
	require.ErrorIs(t, store.Accounts.UpdateDetails(ctx, uuid.NewString(), "x", "x@example.com"), ErrNotFound)

	found, err := store.Accounts.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice L", found.FullName)
}

func TestMemoryAccounts_ReplaceRefreshTokenIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	account := newTestAccount("carol")
	require.NoError(t, store.Accounts.Create(ctx, account))

	require.ErrorIs(t, store.Accounts.ReplaceRefreshToken(ctx, account.ID, "", "r1"), ErrNotFound)
	require.NoError(t, store.Accounts.SetRefreshToken(ctx, account.ID, "r1"))
	require.NoError(t, store.Accounts.ReplaceRefreshToken(ctx, account.ID, "r1", "r2"))
	require.ErrorIs(t, store.Accounts.ReplaceRefreshToken(ctx, account.ID, "r1", "r3"), ErrNotFound)

	found, err := store.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, "r2", found.RefreshToken)
}

func TestMemoryAccounts_TokenWritesKeepUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	account := newTestAccount("ken")
	account.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Accounts.Create(ctx, account))

	require.NoError(t, store.Accounts.SetRefreshToken(ctx, account.ID, "r1"))
	require.NoError(t, store.Accounts.ReplaceRefreshToken(ctx, account.ID, "r1", "r2"))
	require.NoError(t, store.Accounts.SetRefreshToken(ctx, account.ID, ""))

	found, err := store.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Empty(t, found.RefreshToken)
	require.True(t, account.UpdatedAt.Equal(found.UpdatedAt))

	require.ErrorIs(t, store.Accounts.SetRefreshToken(ctx, "missing", "r3"), ErrNotFound)
}

func TestMemoryAccounts_ConcurrentRotationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	account := newTestAccount("dave")
	require.NoError(t, store.Accounts.Create(ctx, account))
	require.NoError(t, store.Accounts.SetRefreshToken(ctx, account.ID, "shared"))

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Accounts.ReplaceRefreshToken(ctx, account.ID, "shared", uuid.NewString()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}

func TestMemoryAccounts_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	account := newTestAccount("erin")
	require.NoError(t, store.Accounts.Create(ctx, account))
	require.NoError(t, store.Accounts.AppendWatchHistory(ctx, account.ID, "v1"))

	found, err := store.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	found.WatchHistory[0] = "mutated"

	again, err := store.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, again.WatchHistory)
}

func TestMemoryChannels_ProfileCountsAndViewerFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	channel := newTestAccount("chan")
	fans := []models.Account{newTestAccount("fan1"), newTestAccount("fan2"), newTestAccount("fan3")}
	require.NoError(t, store.Accounts.Create(ctx, channel))
	for _, fan := range fans {
		require.NoError(t, store.Accounts.Create(ctx, fan))
		require.NoError(t, store.Subscriptions.Create(ctx, models.Subscription{
			ID: uuid.NewString(), Subscriber: fan.ID, Channel: channel.ID, CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, store.Subscriptions.Create(ctx, models.Subscription{
		ID: uuid.NewString(), Subscriber: channel.ID, Channel: fans[0].ID, CreatedAt: time.Now().UTC(),
	}))

	require.ErrorIs(t, store.Subscriptions.Create(ctx, models.Subscription{
		ID: uuid.NewString(), Subscriber: fans[1].ID, Channel: channel.ID,
	}), ErrConflict)
	require.ErrorIs(t, store.Subscriptions.Create(ctx, models.Subscription{
		ID: uuid.NewString(), Subscriber: uuid.NewString(), Channel: channel.ID,
	}), ErrNotFound)

	profile, err := store.Channels.ChannelProfile(ctx, "CHAN", fans[1].ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), profile.SubscribersCount)
	require.Equal(t, int64(1), profile.SubscribedToCount)
	require.True(t, profile.IsSubscribed)
	require.Equal(t, "chan", profile.Handle)

	stranger := newTestAccount("stranger")
	require.NoError(t, store.Accounts.Create(ctx, stranger))
	profile, err = store.Channels.ChannelProfile(ctx, "chan", stranger.ID)
	require.NoError(t, err)
	require.False(t, profile.IsSubscribed)

	profile, err = store.Channels.ChannelProfile(ctx, "chan", "")
	require.NoError(t, err)
	require.False(t, profile.IsSubscribed)

	_, err = store.Channels.ChannelProfile(ctx, "ghost", "")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Subscriptions.Delete(ctx, fans[1].ID, channel.ID))
	require.ErrorIs(t, store.Subscriptions.Delete(ctx, fans[1].ID, channel.ID), ErrNotFound)

	profile, err = store.Channels.ChannelProfile(ctx, "chan", fans[1].ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), profile.SubscribersCount)
	require.False(t, profile.IsSubscribed)
}

func TestMemoryChannels_WatchHistoryKeepsOrderAndSkipsMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	viewer := newTestAccount("viewer")
	owner := newTestAccount("owner")
	require.NoError(t, store.Accounts.Create(ctx, viewer))
	require.NoError(t, store.Accounts.Create(ctx, owner))

	first := newTestVideo(owner.ID, "first")
	second := newTestVideo(owner.ID, "second")
	require.NoError(t, store.Videos.Create(ctx, first))
	require.NoError(t, store.Videos.Create(ctx, second))
	require.ErrorIs(t, store.Videos.Create(ctx, newTestVideo(uuid.NewString(), "orphan")), ErrNotFound)

	for _, id := range []string{second.ID, uuid.NewString(), first.ID, second.ID} {
		require.NoError(t, store.Accounts.AppendWatchHistory(ctx, viewer.ID, id))
	}

	history, err := store.Channels.WatchHistory(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []string{second.ID, first.ID, second.ID}, []string{history[0].ID, history[1].ID, history[2].ID})
	require.Equal(t, models.VideoOwner{FullName: owner.FullName, Handle: owner.Handle, Avatar: owner.Avatar}, history[0].Owner)

	empty, err := store.Channels.WatchHistory(ctx, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	unknown, err := store.Channels.WatchHistory(ctx, uuid.NewString())
	require.NoError(t, err)
	require.NotNil(t, unknown)
	require.Empty(t, unknown)
}

func TestMemoryVideos_IncrementViews(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Store()

	owner := newTestAccount("owner")
	require.NoError(t, store.Accounts.Create(ctx, owner))
	video := newTestVideo(owner.ID, "clip")
	require.NoError(t, store.Videos.Create(ctx, video))

	require.NoError(t, store.Videos.IncrementViews(ctx, video.ID))
	require.NoError(t, store.Videos.IncrementViews(ctx, video.ID))

	found, err := store.Videos.FindByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), found.Views)

	require.ErrorIs(t, store.Videos.IncrementViews(ctx, uuid.NewString()), ErrNotFound)
}
