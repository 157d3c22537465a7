package repositories

import (
	"context"
	"errors"

	"github.com/vidfriends/accounts/internal/models"
)

// Sentinel errors shared by every store. A conditional update that matched nothing is
// reported as ErrNotFound.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// AccountRepository defines the data access contract for accounts. Every Set* method is a
// single-field update that skips validation of the rest of the record.
type AccountRepository interface {
	Create(ctx context.Context, account models.Account) error
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByHandle(ctx context.Context, handle string) (models.Account, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	UpdateDetails(ctx context.Context, id, fullName, email string) error
	SetAvatar(ctx context.Context, id, url string) error
	SetCoverImage(ctx context.Context, id, url string) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	// ReplaceRefreshToken swaps the stored refresh token only if it still equals current.
	// It returns ErrNotFound when the account is missing or the token has moved on.
	ReplaceRefreshToken(ctx context.Context, id, current, next string) error
	AppendWatchHistory(ctx context.Context, id, videoID string) error
}

// SubscriptionRepository persists subscription edges.
type SubscriptionRepository interface {
	// Create returns ErrConflict when the edge already exists and ErrNotFound when either
	// account is missing.
	Create(ctx context.Context, sub models.Subscription) error
	// Delete returns ErrNotFound when no edge exists.
	Delete(ctx context.Context, subscriberID, channelID string) error
}

// VideoRepository exposes data access for uploaded videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	IncrementViews(ctx context.Context, id string) error
}

// ChannelQueries builds the joined read models over accounts, subscriptions and videos.
type ChannelQueries interface {
	// ChannelProfile matches the lowercased handle and counts edges in both directions.
	// viewerID may be empty. Returns ErrNotFound when no account has the handle.
	ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error)
	// WatchHistory returns the account's history joined with videos and owners, in stored
	// order. Entries whose video is gone are skipped.
	WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error)
}

// Store bundles the repositories of one storage engine.
type Store struct {
	Accounts      AccountRepository
	Subscriptions SubscriptionRepository
	Videos        VideoRepository
	Channels      ChannelQueries
}
