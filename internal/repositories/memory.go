package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vidfriends/accounts/internal/models"
)

// MemoryStore implements every repository on in-process maps. It backs tests and the
// "memory" store driver for local development.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]models.Account
	subscriptions map[edgeKey]models.Subscription
	videos        map[string]models.Video
}

type edgeKey struct {
	subscriber string
	channel    string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]models.Account),
		subscriptions: make(map[edgeKey]models.Subscription),
		videos:        make(map[string]models.Video),
	}
}

// Store exposes the memory store through the repository bundle.
func (s *MemoryStore) Store() Store {
	return Store{
		Accounts:      memoryAccounts{s},
		Subscriptions: memorySubscriptions{s},
		Videos:        memoryVideos{s},
		Channels:      memoryChannels{s},
	}
}

type memoryAccounts struct{ s *MemoryStore }

func (r memoryAccounts) Create(_ context.Context, account models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.accounts[account.ID]; exists {
		return ErrConflict
	}
	for _, existing := range r.s.accounts {
		if strings.EqualFold(existing.Handle, account.Handle) || strings.EqualFold(existing.Email, account.Email) {
			return ErrConflict
		}
	}
	account.WatchHistory = append([]string(nil), account.WatchHistory...)
	r.s.accounts[account.ID] = account
	return nil
}

func (r memoryAccounts) FindByID(_ context.Context, id string) (models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r memoryAccounts) FindByHandle(_ context.Context, handle string) (models.Account, error) {
	return r.find(func(a models.Account) bool { return strings.EqualFold(a.Handle, handle) })
}

func (r memoryAccounts) FindByEmail(_ context.Context, email string) (models.Account, error) {
	return r.find(func(a models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (r memoryAccounts) find(match func(models.Account) bool) (models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, account := range r.s.accounts {
		if match(account) {
			return cloneAccount(account), nil
		}
	}
	return models.Account{}, ErrNotFound
}

func (r memoryAccounts) UpdateDetails(_ context.Context, id, fullName, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	for otherID, other := range r.s.accounts {
		if otherID != id && strings.EqualFold(other.Email, email) {
			return ErrConflict
		}
	}
	account.FullName = fullName
	account.Email = email
	account.UpdatedAt = time.Now().UTC()
	r.s.accounts[id] = account
	return nil
}

func (r memoryAccounts) SetAvatar(_ context.Context, id, url string) error {
	return r.update(id, func(a *models.Account) { a.Avatar = url })
}

func (r memoryAccounts) SetCoverImage(_ context.Context, id, url string) error {
	return r.update(id, func(a *models.Account) { a.CoverImage = url })
}

func (r memoryAccounts) SetPasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(a *models.Account) { a.PasswordHash = hash })
}

func (r memoryAccounts) SetRefreshToken(_ context.Context, id, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	account.RefreshToken = token
	r.s.accounts[id] = account
	return nil
}

// ReplaceRefreshToken swaps the token only if current still matches. Token writes leave
// UpdatedAt alone.
func (r memoryAccounts) ReplaceRefreshToken(_ context.Context, id, current, next string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok || current == "" || account.RefreshToken != current {
		return ErrNotFound
	}
	account.RefreshToken = next
	r.s.accounts[id] = account
	return nil
}

func (r memoryAccounts) AppendWatchHistory(_ context.Context, id, videoID string) error {
	return r.update(id, func(a *models.Account) {
		a.WatchHistory = append(a.WatchHistory, videoID)
	})
}

// update applies fn under the write lock and bumps UpdatedAt.
func (r memoryAccounts) update(id string, fn func(*models.Account)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&account)
	account.UpdatedAt = time.Now().UTC()
	r.s.accounts[id] = account
	return nil
}

func cloneAccount(a models.Account) models.Account {
	a.WatchHistory = append([]string(nil), a.WatchHistory...)
	return a
}

type memorySubscriptions struct{ s *MemoryStore }

func (r memorySubscriptions) Create(_ context.Context, sub models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, subscriberOK := r.s.accounts[sub.Subscriber]
	_, channelOK := r.s.accounts[sub.Channel]
	if !subscriberOK || !channelOK {
		return ErrNotFound
	}

	key := edgeKey{subscriber: sub.Subscriber, channel: sub.Channel}
	if _, exists := r.s.subscriptions[key]; exists {
		return ErrConflict
	}
	r.s.subscriptions[key] = sub
	return nil
}

func (r memorySubscriptions) Delete(_ context.Context, subscriberID, channelID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := edgeKey{subscriber: subscriberID, channel: channelID}
	if _, exists := r.s.subscriptions[key]; !exists {
		return ErrNotFound
	}
	delete(r.s.subscriptions, key)
	return nil
}

type memoryVideos struct{ s *MemoryStore }

func (r memoryVideos) Create(_ context.Context, video models.Video) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[video.OwnerID]; !ok {
		return ErrNotFound
	}
	if _, exists := r.s.videos[video.ID]; exists {
		return ErrConflict
	}
	r.s.videos[video.ID] = video
	return nil
}

func (r memoryVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	video, ok := r.s.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return video, nil
}

func (r memoryVideos) IncrementViews(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	video, ok := r.s.videos[id]
	if !ok {
		return ErrNotFound
	}
	video.Views++
	r.s.videos[id] = video
	return nil
}

type memoryChannels struct{ s *MemoryStore }

func (q memoryChannels) ChannelProfile(_ context.Context, handle, viewerID string) (models.ChannelProfile, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	var (
		channel models.Account
		found   bool
	)
	for _, account := range q.s.accounts {
		if strings.EqualFold(account.Handle, handle) {
			channel, found = account, true
			break
		}
	}
	if !found {
		return models.ChannelProfile{}, ErrNotFound
	}

	profile := models.ChannelProfile{
		FullName:   channel.FullName,
		Handle:     channel.Handle,
		Email:      channel.Email,
		Avatar:     channel.Avatar,
		CoverImage: channel.CoverImage,
	}
	for key := range q.s.subscriptions {
		if key.channel == channel.ID {
			profile.SubscribersCount++
			if viewerID != "" && key.subscriber == viewerID {
				profile.IsSubscribed = true
			}
		}
		if key.subscriber == channel.ID {
			profile.SubscribedToCount++
		}
	}
	return profile, nil
}

func (q memoryChannels) WatchHistory(_ context.Context, accountID string) ([]models.WatchedVideo, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	history := []models.WatchedVideo{}
	account, ok := q.s.accounts[accountID]
	if !ok {
		return history, nil
	}

	for _, videoID := range account.WatchHistory {
		video, ok := q.s.videos[videoID]
		if !ok {
			continue
		}
		owner := q.s.accounts[video.OwnerID]
		history = append(history, watchedVideo(video, owner))
	}
	return history, nil
}

func watchedVideo(v models.Video, owner models.Account) models.WatchedVideo {
	return models.WatchedVideo{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Duration:     v.Duration,
		Views:        v.Views,
		Published:    v.Published,
		CreatedAt:    v.CreatedAt,
		Owner: models.VideoOwner{
			FullName: owner.FullName,
			Handle:   owner.Handle,
			Avatar:   owner.Avatar,
		},
	}
}

var (
	_ AccountRepository      = memoryAccounts{}
	_ SubscriptionRepository = memorySubscriptions{}
	_ VideoRepository        = memoryVideos{}
	_ ChannelQueries         = memoryChannels{}
)
