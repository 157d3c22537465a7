package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidfriends/accounts/internal/models"
)

const (
	accountsCollection      = "accounts"
	subscriptionsCollection = "subscriptions"
	videosCollection        = "videos"
)

// MongoStore implements the repositories on MongoDB. Handles and emails are stored
// lowercased, so equality filters on the lowercased input are case-insensitive matches.
type MongoStore struct {
	accounts      *mongo.Collection
	subscriptions *mongo.Collection
	videos        *mongo.Collection
}

// NewMongoStore prepares collections and unique indexes on the database.
func NewMongoStore(ctx context.Context, database *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		accounts:      database.Collection(accountsCollection),
		subscriptions: database.Collection(subscriptionsCollection),
		videos:        database.Collection(videosCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Store exposes the Mongo store through the repository bundle.
func (s *MongoStore) Store() Store {
	return Store{
		Accounts:      mongoAccounts{s},
		Subscriptions: mongoSubscriptions{s},
		Videos:        mongoVideos{s},
		Channels:      mongoChannels{s},
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName("username_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("email_unique").SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("mongo ensure account indexes: %w", err)
	}

	if _, err := s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}}, Options: options.Index().SetName("edge_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "channel", Value: 1}}, Options: options.Index().SetName("channel")},
	}); err != nil {
		return fmt.Errorf("mongo ensure subscription indexes: %w", err)
	}

	if _, err := s.videos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetName("owner"),
	}); err != nil {
		return fmt.Errorf("mongo ensure video indexes: %w", err)
	}
	return nil
}

type accountDoc struct {
	ID           string    `bson:"_id"`
	Handle       string    `bson:"username"`
	Email        string    `bson:"email"`
	FullName     string    `bson:"fullName"`
	PasswordHash string    `bson:"password"`
	Avatar       string    `bson:"avatar"`
	CoverImage   string    `bson:"coverImage"`
	RefreshToken string    `bson:"refreshToken,omitempty"`
	WatchHistory []string  `bson:"watchHistory"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d accountDoc) model() models.Account {
	return models.Account{
		ID:           d.ID,
		Handle:       d.Handle,
		Email:        d.Email,
		FullName:     d.FullName,
		PasswordHash: d.PasswordHash,
		Avatar:       d.Avatar,
		CoverImage:   d.CoverImage,
		RefreshToken: d.RefreshToken,
		WatchHistory: d.WatchHistory,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type subscriptionDoc struct {
	ID         string    `bson:"_id"`
	Subscriber string    `bson:"subscriber"`
	Channel    string    `bson:"channel"`
	CreatedAt  time.Time `bson:"createdAt"`
}

type ownerDoc struct {
	FullName string `bson:"fullName"`
	Handle   string `bson:"username"`
	Avatar   string `bson:"avatar"`
}

type videoDoc struct {
	ID           string    `bson:"_id"`
	OwnerID      string    `bson:"owner"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description"`
	VideoURL     string    `bson:"videoFile"`
	ThumbnailURL string    `bson:"thumbnail"`
	Duration     float64   `bson:"duration"`
	Views        int64     `bson:"views"`
	Published    bool      `bson:"isPublished"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d videoDoc) model() models.Video {
	return models.Video{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Title:        d.Title,
		Description:  d.Description,
		VideoURL:     d.VideoURL,
		ThumbnailURL: d.ThumbnailURL,
		Duration:     d.Duration,
		Views:        d.Views,
		Published:    d.Published,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type mongoAccounts struct{ s *MongoStore }

func (r mongoAccounts) Create(ctx context.Context, account models.Account) error {
	history := account.WatchHistory
	if history == nil {
		history = []string{}
	}
	doc := accountDoc{
		ID:           account.ID,
		Handle:       strings.ToLower(account.Handle),
		Email:        strings.ToLower(account.Email),
		FullName:     account.FullName,
		PasswordHash: account.PasswordHash,
		Avatar:       account.Avatar,
		CoverImage:   account.CoverImage,
		RefreshToken: account.RefreshToken,
		WatchHistory: history,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
	if _, err := r.s.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r mongoAccounts) FindByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r mongoAccounts) FindByHandle(ctx context.Context, handle string) (models.Account, error) {
	return r.findOne(ctx, bson.M{"username": strings.ToLower(handle)})
}

func (r mongoAccounts) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r mongoAccounts) findOne(ctx context.Context, filter bson.M) (models.Account, error) {
	var doc accountDoc
	if err := r.s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return doc.model(), nil
}

func (r mongoAccounts) UpdateDetails(ctx context.Context, id, fullName, email string) error {
	return r.update(ctx, "update account details", bson.M{"_id": id}, bson.M{
		"$set": bson.M{"fullName": fullName, "email": strings.ToLower(email), "updatedAt": time.Now().UTC()},
	})
}

func (r mongoAccounts) SetAvatar(ctx context.Context, id, url string) error {
	return r.set(ctx, "update avatar", id, "avatar", url)
}

func (r mongoAccounts) SetCoverImage(ctx context.Context, id, url string) error {
	return r.set(ctx, "update cover image", id, "coverImage", url)
}

func (r mongoAccounts) SetPasswordHash(ctx context.Context, id, hash string) error {
	return r.set(ctx, "update password", id, "password", hash)
}

func (r mongoAccounts) SetRefreshToken(ctx context.Context, id, token string) error {
	if token == "" {
		return r.update(ctx, "clear refresh token", bson.M{"_id": id}, bson.M{"$unset": bson.M{"refreshToken": 1}})
	}
	return r.update(ctx, "update refresh token", bson.M{"_id": id}, bson.M{"$set": bson.M{"refreshToken": token}})
}

func (r mongoAccounts) ReplaceRefreshToken(ctx context.Context, id, current, next string) error {
	if current == "" {
		return ErrNotFound
	}
	return r.update(ctx, "rotate refresh token",
		bson.M{"_id": id, "refreshToken": current},
		bson.M{"$set": bson.M{"refreshToken": next}},
	)
}

func (r mongoAccounts) AppendWatchHistory(ctx context.Context, id, videoID string) error {
	return r.update(ctx, "append watch history", bson.M{"_id": id}, bson.M{"$push": bson.M{"watchHistory": videoID}})
}

func (r mongoAccounts) set(ctx context.Context, op, id, field, value string) error {
	return r.update(ctx, op, bson.M{"_id": id}, bson.M{
		"$set": bson.M{field: value, "updatedAt": time.Now().UTC()},
	})
}

func (r mongoAccounts) update(ctx context.Context, op string, filter, update bson.M) error {
	res, err := r.s.accounts.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoSubscriptions struct{ s *MongoStore }

func (r mongoSubscriptions) Create(ctx context.Context, sub models.Subscription) error {
	n, err := r.s.accounts.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": bson.A{sub.Subscriber, sub.Channel}}})
	if err != nil {
		return fmt.Errorf("count subscription accounts: %w", err)
	}
	if n < 2 {
		return ErrNotFound
	}

	_, err = r.s.subscriptions.InsertOne(ctx, subscriptionDoc{
		ID:         sub.ID,
		Subscriber: sub.Subscriber,
		Channel:    sub.Channel,
		CreatedAt:  sub.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r mongoSubscriptions) Delete(ctx context.Context, subscriberID, channelID string) error {
	res, err := r.s.subscriptions.DeleteOne(ctx, bson.M{"subscriber": subscriberID, "channel": channelID})
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoVideos struct{ s *MongoStore }

func (r mongoVideos) Create(ctx context.Context, video models.Video) error {
	_, err := r.s.videos.InsertOne(ctx, videoDoc{
		ID:           video.ID,
		OwnerID:      video.OwnerID,
		Title:        video.Title,
		Description:  video.Description,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
		Duration:     video.Duration,
		Views:        video.Views,
		Published:    video.Published,
		CreatedAt:    video.CreatedAt,
		UpdatedAt:    video.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r mongoVideos) FindByID(ctx context.Context, id string) (models.Video, error) {
	var doc videoDoc
	if err := r.s.videos.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("find video: %w", err)
	}
	return doc.model(), nil
}

func (r mongoVideos) IncrementViews(ctx context.Context, id string) error {
	res, err := r.s.videos.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return fmt.Errorf("increment video views: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoChannels struct{ s *MongoStore }

type channelProfileDoc struct {
	FullName          string `bson:"fullName"`
	Handle            string `bson:"username"`
	Email             string `bson:"email"`
	Avatar            string `bson:"avatar"`
	CoverImage        string `bson:"coverImage"`
	SubscribersCount  int64  `bson:"subscribersCount"`
	SubscribedToCount int64  `bson:"channelsSubscribedToCount"`
	IsSubscribed      bool   `bson:"isSubscribed"`
}

func (q mongoChannels) ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"username": strings.ToLower(handle)}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "channel",
			"as":           "subscribers",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         subscriptionsCollection,
			"localField":   "_id",
			"foreignField": "subscriber",
			"as":           "subscribedTo",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"subscribersCount":          bson.M{"$size": "$subscribers"},
			"channelsSubscribedToCount": bson.M{"$size": "$subscribedTo"},
			"isSubscribed":              bson.M{"$in": bson.A{viewerID, "$subscribers.subscriber"}},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":                       0,
			"fullName":                  1,
			"username":                  1,
			"email":                     1,
			"avatar":                    1,
			"coverImage":                1,
			"subscribersCount":          1,
			"channelsSubscribedToCount": 1,
			"isSubscribed":              1,
		}}},
		{{Key: "$limit", Value: 1}},
	}

	cur, err := q.s.accounts.Aggregate(ctx, pipeline)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("aggregate channel profile: %w", err)
	}
	defer cur.Close(ctx)

	var docs []channelProfileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return models.ChannelProfile{}, fmt.Errorf("decode channel profile: %w", err)
	}
	if len(docs) == 0 {
		return models.ChannelProfile{}, ErrNotFound
	}

	d := docs[0]
	return models.ChannelProfile{
		FullName:          d.FullName,
		Handle:            d.Handle,
		Email:             d.Email,
		Avatar:            d.Avatar,
		CoverImage:        d.CoverImage,
		SubscribersCount:  d.SubscribersCount,
		SubscribedToCount: d.SubscribedToCount,
		IsSubscribed:      viewerID != "" && d.IsSubscribed,
	}, nil
}

// watchedVideoDoc is one row of the watch history pipeline. The video is a named field
// because the bson codec skips unexported embedded structs.
type watchedVideoDoc struct {
	Video videoDoc `bson:",inline"`
	Owner ownerDoc `bson:"ownerInfo"`
}

func (d watchedVideoDoc) model() models.WatchedVideo {
	return watchedVideo(d.Video.model(), models.Account{
		FullName: d.Owner.FullName,
		Handle:   d.Owner.Handle,
		Avatar:   d.Owner.Avatar,
	})
}

// WatchHistory joins videos with their owners in one pipeline, then lays the results out
// in stored history order. $lookup would collapse duplicate views and lose the order, so
// ordering is restored here.
func (q mongoChannels) WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error) {
	history := []models.WatchedVideo{}

	var account struct {
		WatchHistory []string `bson:"watchHistory"`
	}
	err := q.s.accounts.FindOne(ctx, bson.M{"_id": accountID},
		options.FindOne().SetProjection(bson.M{"watchHistory": 1})).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return history, nil
		}
		return nil, fmt.Errorf("find watch history: %w", err)
	}
	if len(account.WatchHistory) == 0 {
		return history, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": account.WatchHistory}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         accountsCollection,
			"localField":   "owner",
			"foreignField": "_id",
			"as":           "ownerDocs",
			"pipeline": bson.A{
				bson.M{"$project": bson.M{"_id": 0, "fullName": 1, "username": 1, "avatar": 1}},
			},
		}}},
		{{Key: "$addFields", Value: bson.M{"ownerInfo": bson.M{"$first": "$ownerDocs"}}}},
	}

	cur, err := q.s.videos.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate watch history: %w", err)
	}
	defer cur.Close(ctx)

	var docs []watchedVideoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode watch history: %w", err)
	}

	byID := make(map[string]watchedVideoDoc, len(docs))
	for _, d := range docs {
		byID[d.Video.ID] = d
	}

	for _, videoID := range account.WatchHistory {
		d, ok := byID[videoID]
		if !ok {
			continue
		}
		history = append(history, d.model())
	}
	return history, nil
}

var (
	_ AccountRepository      = mongoAccounts{}
	_ SubscriptionRepository = mongoSubscriptions{}
	_ VideoRepository        = mongoVideos{}
	_ ChannelQueries         = mongoChannels{}
)
