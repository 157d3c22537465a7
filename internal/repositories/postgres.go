package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/accounts/internal/db"
	"github.com/vidfriends/accounts/internal/models"
)

// NewPostgresStore wires every PostgreSQL-backed repository onto one pool.
func NewPostgresStore(pool db.Pool) Store {
	return Store{
		Accounts:      NewPostgresAccountRepository(pool),
		Subscriptions: NewPostgresSubscriptionRepository(pool),
		Videos:        NewPostgresVideoRepository(pool),
		Channels:      NewPostgresChannelQueries(pool),
	}
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrConflict
		case pgerrcode.ForeignKeyViolation:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, handle, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
    `, account.ID, account.Handle, account.Email, account.FullName, account.PasswordHash,
		account.Avatar, account.CoverImage, account.RefreshToken, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return mapWriteError("insert account", err)
	}

	return nil
}

const selectAccount = `
        SELECT id, handle, email, full_name, password_hash, avatar_url, cover_image_url,
               COALESCE(refresh_token, ''), created_at, updated_at
        FROM accounts
`

// FindByID fetches an account by its identifier.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByHandle fetches an account by handle, ignoring case.
func (r *PostgresAccountRepository) FindByHandle(ctx context.Context, handle string) (models.Account, error) {
	return r.findOne(ctx, "lower(handle) = lower($1)", handle)
}

// FindByEmail fetches an account by email address, ignoring case.
func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return r.findOne(ctx, "lower(email) = lower($1)", email)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, where string, arg string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var account models.Account
	row := conn.QueryRow(ctx, selectAccount+" WHERE "+where, arg)
	if err := row.Scan(&account.ID, &account.Handle, &account.Email, &account.FullName, &account.PasswordHash,
		&account.Avatar, &account.CoverImage, &account.RefreshToken, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("select account: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT video_id
        FROM watch_history
        WHERE account_id = $1
        ORDER BY id
    `, account.ID)
	if err != nil {
		return models.Account{}, fmt.Errorf("query watch history: %w", err)
	}
	history, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return models.Account{}, fmt.Errorf("collect watch history: %w", err)
	}
	account.WatchHistory = history

	return account, nil
}

// UpdateDetails changes the display name and email of an account.
func (r *PostgresAccountRepository) UpdateDetails(ctx context.Context, id, fullName, email string) error {
	return r.exec(ctx, "update account details", `
        UPDATE accounts
        SET full_name = $2, email = $3, updated_at = now()
        WHERE id = $1
    `, id, fullName, email)
}

// SetAvatar replaces the avatar URL.
func (r *PostgresAccountRepository) SetAvatar(ctx context.Context, id, url string) error {
	return r.exec(ctx, "update avatar", `UPDATE accounts SET avatar_url = $2, updated_at = now() WHERE id = $1`, id, url)
}

// SetCoverImage replaces the cover image URL.
func (r *PostgresAccountRepository) SetCoverImage(ctx context.Context, id, url string) error {
	return r.exec(ctx, "update cover image", `UPDATE accounts SET cover_image_url = $2, updated_at = now() WHERE id = $1`, id, url)
}

// SetPasswordHash stores a new password digest.
func (r *PostgresAccountRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "update password", `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

// SetRefreshToken overwrites the stored refresh token; an empty token clears it.
func (r *PostgresAccountRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, "update refresh token", `UPDATE accounts SET refresh_token = NULLIF($2, '') WHERE id = $1`, id, token)
}

// ReplaceRefreshToken rotates the refresh token if the stored value still matches.
func (r *PostgresAccountRepository) ReplaceRefreshToken(ctx context.Context, id, current, next string) error {
	if current == "" {
		return ErrNotFound
	}
	return r.exec(ctx, "rotate refresh token", `
        UPDATE accounts
        SET refresh_token = NULLIF($3, '')
        WHERE id = $1 AND refresh_token = $2
    `, id, current, next)
}

// AppendWatchHistory records a view at the end of the account's history.
func (r *PostgresAccountRepository) AppendWatchHistory(ctx context.Context, id, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (account_id, video_id, viewed_at)
        VALUES ($1, $2, $3)
    `, id, videoID, time.Now().UTC())
	if err != nil {
		return mapWriteError("insert watch history", err)
	}
	return nil
}

func (r *PostgresAccountRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresSubscriptionRepository provides PostgreSQL-backed persistence for subscriptions.
type PostgresSubscriptionRepository struct {
	pool db.Pool
}

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Create persists a new subscription edge.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub models.Subscription) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
        VALUES ($1, $2, $3, $4)
    `, sub.ID, sub.Subscriber, sub.Channel, sub.CreatedAt)
	if err != nil {
		return mapWriteError("insert subscription", err)
	}
	return nil
}

// Delete removes the edge between subscriber and channel.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, subscriberID, channelID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM subscriptions
        WHERE subscriber_id = $1 AND channel_id = $2
    `, subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, views, is_published, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		video.Duration, video.Views, video.Published, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return mapWriteError("insert video", err)
	}
	return nil
}

// FindByID fetches a video by identifier.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var v models.Video
	err = conn.QueryRow(ctx, `
        SELECT id, owner_id, title, description, video_url, thumbnail_url, duration, views, is_published, created_at, updated_at
        FROM videos
        WHERE id = $1
    `, id).Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.Duration, &v.Views, &v.Published, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return v, nil
}

// IncrementViews bumps the view counter of a video.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment video views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresChannelQueries runs the channel read models as SQL joins.
type PostgresChannelQueries struct {
	pool db.Pool
}

// NewPostgresChannelQueries constructs channel queries backed by PostgreSQL.
func NewPostgresChannelQueries(pool db.Pool) *PostgresChannelQueries {
	return &PostgresChannelQueries{pool: pool}
}

// ChannelProfile resolves the channel and counts its edges in a single round trip.
func (q *PostgresChannelQueries) ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error) {
	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var p models.ChannelProfile
	err = conn.QueryRow(ctx, `
        SELECT a.full_name, a.handle, a.email, a.avatar_url, a.cover_image_url,
               (SELECT count(*) FROM subscriptions s WHERE s.channel_id = a.id),
               (SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = a.id),
               EXISTS (
                   SELECT 1 FROM subscriptions s
                   WHERE s.channel_id = a.id AND s.subscriber_id::TEXT = $2
               )
        FROM accounts a
        WHERE lower(a.handle) = lower($1)
    `, handle, viewerID).Scan(&p.FullName, &p.Handle, &p.Email, &p.Avatar, &p.CoverImage,
		&p.SubscribersCount, &p.SubscribedToCount, &p.IsSubscribed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, ErrNotFound
		}
		return models.ChannelProfile{}, fmt.Errorf("select channel profile: %w", err)
	}
	return p, nil
}

// WatchHistory joins the history rows with videos and their owners.
func (q *PostgresChannelQueries) WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error) {
	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url, v.duration, v.views,
               v.is_published, v.created_at, o.full_name, o.handle, o.avatar_url
        FROM watch_history h
        JOIN videos v ON v.id = h.video_id
        JOIN accounts o ON o.id = v.owner_id
        WHERE h.account_id = $1
        ORDER BY h.id
    `, accountID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	history := []models.WatchedVideo{}
	for rows.Next() {
		var w models.WatchedVideo
		if err := rows.Scan(&w.ID, &w.Title, &w.Description, &w.VideoURL, &w.ThumbnailURL, &w.Duration, &w.Views,
			&w.Published, &w.CreatedAt, &w.Owner.FullName, &w.Owner.Handle, &w.Owner.Avatar); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		history = append(history, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return history, nil
}

var (
	_ AccountRepository      = (*PostgresAccountRepository)(nil)
	_ SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
	_ VideoRepository        = (*PostgresVideoRepository)(nil)
	_ ChannelQueries         = (*PostgresChannelQueries)(nil)
	_ db.Pool                = (*pgxpool.Pool)(nil)
)
