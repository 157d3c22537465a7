package handlers

import (
	"context"

	"github.com/vidfriends/accounts/internal/accounts"
	"github.com/vidfriends/accounts/internal/models"
)

// AccountService is the session controller used by the user endpoints.
type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (models.PublicAccount, error)
	Login(ctx context.Context, identifier, password string) (accounts.Session, error)
	Logout(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, token string) (models.TokenPair, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	Authenticate(ctx context.Context, token string) (models.PublicAccount, error)
	CurrentAccount(ctx context.Context, accountID string) (models.PublicAccount, error)
	UpdateDetails(ctx context.Context, accountID, fullName, email string) (models.PublicAccount, error)
	UpdateAvatar(ctx context.Context, accountID, localPath string) (models.PublicAccount, error)
	UpdateCoverImage(ctx context.Context, accountID, localPath string) (models.PublicAccount, error)
}

// VideoService publishes videos and records views.
type VideoService interface {
	PublishVideo(ctx context.Context, ownerID string, in accounts.PublishInput) (models.Video, error)
	RecordView(ctx context.Context, accountID, videoID string) error
}

// ChannelService serves channel profiles, watch history and subscriptions.
type ChannelService interface {
	ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error)
	Subscribe(ctx context.Context, subscriberID, channelHandle string) (models.ChannelProfile, error)
	Unsubscribe(ctx context.Context, subscriberID, channelHandle string) (models.ChannelProfile, error)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error
