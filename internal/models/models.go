package models

import "time"

// Account represents a registered user of the platform. The same record doubles as a
// channel other accounts can subscribe to.
type Account struct {
	ID           string
	Handle       string
	Email        string
	FullName     string
	PasswordHash string
	Avatar       string
	CoverImage   string
	RefreshToken string
	WatchHistory []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicAccount is the sanitized view of an account handed to callers.
type PublicAccount struct {
	ID           string    `json:"id"`
	Handle       string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage,omitempty"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public strips credentials from the account.
func (a Account) Public() PublicAccount {
	history := a.WatchHistory
	if history == nil {
		history = []string{}
	}
	return PublicAccount{
		ID:           a.ID,
		Handle:       a.Handle,
		Email:        a.Email,
		FullName:     a.FullName,
		Avatar:       a.Avatar,
		CoverImage:   a.CoverImage,
		WatchHistory: history,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// Subscription is a follow edge from a subscriber to a channel.
type Subscription struct {
	ID         string
	Subscriber string
	Channel    string
	CreatedAt  time.Time
}

// Video is an uploaded video owned by an account.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	VideoURL     string    `json:"videoFile"`
	ThumbnailURL string    `json:"thumbnail"`
	Duration     float64   `json:"duration"`
	Views        int64     `json:"views"`
	Published    bool      `json:"isPublished"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChannelProfile is the public read model of a channel as seen by a viewer.
type ChannelProfile struct {
	FullName          string `json:"fullName"`
	Handle            string `json:"username"`
	Email             string `json:"email"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage"`
	SubscribersCount  int64  `json:"subscribersCount"`
	SubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// VideoOwner is the projection of an account embedded in watch-history entries.
type VideoOwner struct {
	FullName string `json:"fullName"`
	Handle   string `json:"username"`
	Avatar   string `json:"avatar"`
}

// WatchedVideo is a watch-history entry joined with its video and owner.
type WatchedVideo struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	VideoURL     string     `json:"videoFile"`
	ThumbnailURL string     `json:"thumbnail"`
	Duration     float64    `json:"duration"`
	Views        int64      `json:"views"`
	Published    bool       `json:"isPublished"`
	CreatedAt    time.Time  `json:"createdAt"`
	Owner        VideoOwner `json:"owner"`
}

// TokenPair groups the bearer credentials issued to an authenticated account.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"-"`
}
