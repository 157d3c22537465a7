// Package channels serves the social read model: channel profiles with subscription counts,
// watch history joined to videos and owners, and subscription edges.
package channels

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/repositories"
)

// Service aggregates channel and history views.
type Service struct {
	accounts      repositories.AccountRepository
	subscriptions repositories.SubscriptionRepository
	queries       repositories.ChannelQueries
	now           func() time.Time
}

// NewService constructs the aggregator over a repository bundle.
func NewService(store repositories.Store) *Service {
	return &Service{
		accounts:      store.Accounts,
		subscriptions: store.Subscriptions,
		queries:       store.Channels,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func normalizeHandle(handle string) (string, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return "", apperr.Validation("username is missing")
	}
	return handle, nil
}

// ChannelProfile returns the channel named by handle as seen by viewerID. An empty viewerID
// is an anonymous viewer and is never subscribed.
func (s *Service) ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error) {
	ctx, span := logging.StartSpan(ctx, "channels.ChannelProfile")
	defer span.End()

	handle, err := normalizeHandle(handle)
	if err != nil {
		return models.ChannelProfile{}, err
	}

	profile, err := s.queries.ChannelProfile(ctx, handle, viewerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ChannelProfile{}, apperr.NotFound("channel does not exist")
		}
		return models.ChannelProfile{}, apperr.Internal("failed to load channel", err)
	}
	return profile, nil
}

// WatchHistory returns the account's watched videos in viewing order. It never fails for an
// empty history or an unknown account.
func (s *Service) WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error) {
	ctx, span := logging.StartSpan(ctx, "channels.WatchHistory")
	defer span.End()

	history, err := s.queries.WatchHistory(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("failed to load watch history", err)
	}
	if history == nil {
		history = []models.WatchedVideo{}
	}
	return history, nil
}

// Subscribe adds a subscription edge from subscriberID to the channel. Subscribing twice is
// not an error.
func (s *Service) Subscribe(ctx context.Context, subscriberID, channelHandle string) (models.ChannelProfile, error) {
	ctx, span := logging.StartSpan(ctx, "channels.Subscribe")
	defer span.End()

	channel, err := s.channel(ctx, subscriberID, channelHandle)
	if err != nil {
		return models.ChannelProfile{}, err
	}

	err = s.subscriptions.Create(ctx, models.Subscription{
		ID:         uuid.NewString(),
		Subscriber: subscriberID,
		Channel:    channel.ID,
		CreatedAt:  s.now(),
	})
	switch {
	case err == nil:
		logging.FromContext(ctx).Info("subscribed", "subscriberId", subscriberID, "channelId", channel.ID)
	case errors.Is(err, repositories.ErrConflict):
	case errors.Is(err, repositories.ErrNotFound):
		return models.ChannelProfile{}, apperr.NotFound("channel does not exist")
	default:
		return models.ChannelProfile{}, apperr.Internal("failed to subscribe", err)
	}

	return s.ChannelProfile(ctx, channel.Handle, subscriberID)
}

// Unsubscribe removes the subscription edge if present.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, channelHandle string) (models.ChannelProfile, error) {
	ctx, span := logging.StartSpan(ctx, "channels.Unsubscribe")
	defer span.End()

	channel, err := s.channel(ctx, subscriberID, channelHandle)
	if err != nil {
		return models.ChannelProfile{}, err
	}

	if err := s.subscriptions.Delete(ctx, subscriberID, channel.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return models.ChannelProfile{}, apperr.Internal("failed to unsubscribe", err)
	}

	return s.ChannelProfile(ctx, channel.Handle, subscriberID)
}

func (s *Service) channel(ctx context.Context, subscriberID, handle string) (models.Account, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return models.Account{}, err
	}

	channel, err := s.accounts.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, apperr.NotFound("channel does not exist")
		}
		return models.Account{}, apperr.Internal("failed to load channel", err)
	}
	if channel.ID == subscriberID {
		return models.Account{}, apperr.Validation("cannot subscribe to your own channel")
	}
	return channel, nil
}
