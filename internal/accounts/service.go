// Package accounts implements registration, credential checks and session lifecycle for
// platform accounts, plus the profile and media updates an authenticated account can make.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/auth"
	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/repositories"
)

// Hasher produces and checks password digests.
type Hasher interface {
	Hash(password string) (string, error)
	Matches(digest, password string) bool
}

// Uploader moves a locally staged file to durable storage and returns its public URL.
// The local file is removed whether or not the upload succeeds.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Prober reads the duration in seconds of a local media file.
type Prober interface {
	Duration(ctx context.Context, localPath string) (float64, error)
}

// Tokens is the token service used by the session controller.
type Tokens interface {
	IssueTokenPair(ctx context.Context, account models.Account) (models.TokenPair, error)
	VerifyAccessToken(token string) (auth.AccessClaims, error)
	RefreshSubject(token string) (string, error)
	Rotate(ctx context.Context, token string, account models.Account) (models.TokenPair, error)
	Revoke(ctx context.Context, accountID string) error
}

// Session is the result of a successful login.
type Session struct {
	Account models.PublicAccount
	Tokens  models.TokenPair
}

// RegisterInput carries the registration form. AvatarPath and CoverPath point at files
// already staged on local disk.
type RegisterInput struct {
	FullName   string
	Email      string
	Handle     string
	Password   string
	AvatarPath string
	CoverPath  string
}

// PublishInput carries a video upload form with staged local files.
type PublishInput struct {
	Title         string
	Description   string
	VideoPath     string
	ThumbnailPath string
}

// Service is the session controller.
type Service struct {
	accounts repositories.AccountRepository
	videos   repositories.VideoRepository
	tokens   Tokens
	hasher   Hasher
	media    Uploader
	prober   Prober
	now      func() time.Time
}

// NewService wires the controller onto its collaborators.
func NewService(store repositories.Store, tokens Tokens, hasher Hasher, media Uploader, prober Prober) *Service {
	return &Service{
		accounts: store.Accounts,
		videos:   store.Videos,
		tokens:   tokens,
		hasher:   hasher,
		media:    media,
		prober:   prober,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account and returns its sanitized projection.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.PublicAccount, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.Register")
	defer span.End()
	logger := logging.FromContext(ctx)

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Handle = strings.ToLower(strings.TrimSpace(in.Handle))

	if err := apperr.RequireFields(
		"fullName", in.FullName,
		"email", in.Email,
		"username", in.Handle,
		"password", in.Password,
	); err != nil {
		return models.PublicAccount{}, err
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return models.PublicAccount{}, apperr.Validation("invalid email address")
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return models.PublicAccount{}, err
	}
	if in.AvatarPath == "" {
		return models.PublicAccount{}, apperr.Validation("avatar file is required")
	}

	if taken, err := s.taken(ctx, in.Handle, in.Email); err != nil {
		return models.PublicAccount{}, err
	} else if taken {
		logger.Warn("register existing account", "username", in.Handle, "email", in.Email)
		return models.PublicAccount{}, apperr.Conflict("user with email or username already exists")
	}

	avatarURL, err := s.media.Upload(ctx, in.AvatarPath)
	if err != nil || avatarURL == "" {
		return models.PublicAccount{}, apperr.Dependency("failed to upload avatar", err)
	}

	var coverURL string
	if in.CoverPath != "" {
		if coverURL, err = s.media.Upload(ctx, in.CoverPath); err != nil {
			logger.Warn("cover image upload failed", "error", err)
			coverURL = ""
		}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.PublicAccount{}, apperr.Internal("failed to secure password", err)
	}

	now := s.now()
	account := models.Account{
		ID:           uuid.NewString(),
		Handle:       in.Handle,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: digest,
		Avatar:       avatarURL,
		CoverImage:   coverURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.PublicAccount{}, apperr.Conflict("user with email or username already exists")
		}
		return models.PublicAccount{}, apperr.Internal("failed to create account", err)
	}

	created, err := s.accounts.FindByID(ctx, account.ID)
	if err != nil {
		return models.PublicAccount{}, apperr.Internal("something went wrong while registering the user", err)
	}

	logger.Info("account registered", "accountId", created.ID)
	return created.Public(), nil
}

func (s *Service) taken(ctx context.Context, handle, email string) (bool, error) {
	if _, err := s.accounts.FindByHandle(ctx, handle); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return false, apperr.Internal("unable to verify existing accounts", err)
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return false, apperr.Internal("unable to verify existing accounts", err)
	}
	return false, nil
}

// Login verifies credentials given as a handle or an email and opens a session.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.Login")
	defer span.End()
	logger := logging.FromContext(ctx)

	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return Session{}, apperr.Validation("username or email is required")
	}
	if password == "" {
		return Session{}, apperr.Validation("password is required")
	}

	account, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login unknown account", "identifier", identifier)
			return Session{}, apperr.NotFound("user does not exist")
		}
		return Session{}, apperr.Internal("failed to load account", err)
	}

	if !s.hasher.Matches(account.PasswordHash, password) {
		logger.Warn("login password mismatch", "accountId", account.ID)
		return Session{}, apperr.Unauthorized("invalid user credentials")
	}

	tokens, err := s.tokens.IssueTokenPair(ctx, account)
	if err != nil {
		return Session{}, err
	}

	return Session{Account: account.Public(), Tokens: tokens}, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (models.Account, error) {
	account, err := s.accounts.FindByHandle(ctx, identifier)
	if err == nil || !errors.Is(err, repositories.ErrNotFound) || !strings.Contains(identifier, "@") {
		return account, err
	}
	return s.accounts.FindByEmail(ctx, identifier)
}

// Logout revokes the account's refresh token. It is safe to call repeatedly.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	ctx, span := logging.StartSpan(ctx, "accounts.Logout")
	defer span.End()

	return s.tokens.Revoke(ctx, accountID)
}

// Refresh rotates a refresh token into a new token pair.
func (s *Service) Refresh(ctx context.Context, incoming string) (models.TokenPair, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.Refresh")
	defer span.End()

	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return models.TokenPair{}, apperr.Unauthorized("unauthorized request")
	}

	accountID, err := s.tokens.RefreshSubject(incoming)
	if err != nil {
		return models.TokenPair{}, err
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.TokenPair{}, apperr.Unauthorized("invalid refresh token")
		}
		return models.TokenPair{}, apperr.Internal("failed to load account", err)
	}

	return s.tokens.Rotate(ctx, incoming, account)
}

// ChangePassword replaces the password digest after checking the current password.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	ctx, span := logging.StartSpan(ctx, "accounts.ChangePassword")
	defer span.End()

	if err := apperr.RequireFields("oldPassword", oldPassword, "newPassword", newPassword); err != nil {
		return err
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return err
	}

	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.hasher.Matches(account.PasswordHash, oldPassword) {
		logging.FromContext(ctx).Warn("change password mismatch", "accountId", accountID)
		return apperr.Unauthorized("invalid old password")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("failed to secure password", err)
	}

	if err := s.accounts.SetPasswordHash(ctx, accountID, digest); err != nil {
		return s.writeError("failed to update password", err)
	}
	return nil
}

// Authenticate resolves an access token to the account it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (models.PublicAccount, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.PublicAccount{}, apperr.Unauthorized("unauthorized request")
	}

	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return models.PublicAccount{}, err
	}

	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.PublicAccount{}, apperr.Unauthorized("invalid access token")
		}
		return models.PublicAccount{}, apperr.Internal("failed to load account", err)
	}

	return account.Public(), nil
}

// CurrentAccount returns the sanitized account.
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (models.PublicAccount, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return models.PublicAccount{}, err
	}
	return account.Public(), nil
}

// UpdateDetails changes the display name and email.
func (s *Service) UpdateDetails(ctx context.Context, accountID, fullName, email string) (models.PublicAccount, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.UpdateDetails")
	defer span.End()

	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := apperr.RequireFields("fullName", fullName, "email", email); err != nil {
		return models.PublicAccount{}, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.PublicAccount{}, apperr.Validation("invalid email address")
	}

	if err := s.accounts.UpdateDetails(ctx, accountID, fullName, email); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.PublicAccount{}, apperr.Conflict("email is already in use")
		}
		return models.PublicAccount{}, s.writeError("failed to update account details", err)
	}

	return s.CurrentAccount(ctx, accountID)
}

// UpdateAvatar uploads a staged image and makes it the account avatar.
func (s *Service) UpdateAvatar(ctx context.Context, accountID, localPath string) (models.PublicAccount, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.UpdateAvatar")
	defer span.End()

	if localPath == "" {
		return models.PublicAccount{}, apperr.Validation("avatar file is missing")
	}
	url, err := s.media.Upload(ctx, localPath)
	if err != nil || url == "" {
		return models.PublicAccount{}, apperr.Dependency("error while uploading avatar", err)
	}
	if err := s.accounts.SetAvatar(ctx, accountID, url); err != nil {
		return models.PublicAccount{}, s.writeError("failed to update avatar", err)
	}
	return s.CurrentAccount(ctx, accountID)
}

// UpdateCoverImage uploads a staged image and makes it the account cover image.
func (s *Service) UpdateCoverImage(ctx context.Context, accountID, localPath string) (models.PublicAccount, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.UpdateCoverImage")
	defer span.End()

	if localPath == "" {
		return models.PublicAccount{}, apperr.Validation("cover image file is missing")
	}
	url, err := s.media.Upload(ctx, localPath)
	if err != nil || url == "" {
		return models.PublicAccount{}, apperr.Dependency("error while uploading cover image", err)
	}
	if err := s.accounts.SetCoverImage(ctx, accountID, url); err != nil {
		return models.PublicAccount{}, s.writeError("failed to update cover image", err)
	}
	return s.CurrentAccount(ctx, accountID)
}

// PublishVideo probes, uploads and records a new video owned by the account.
func (s *Service) PublishVideo(ctx context.Context, ownerID string, in PublishInput) (models.Video, error) {
	ctx, span := logging.StartSpan(ctx, "accounts.PublishVideo")
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := apperr.RequireFields("title", in.Title, "description", in.Description); err != nil {
		return models.Video{}, err
	}
	if in.VideoPath == "" || in.ThumbnailPath == "" {
		return models.Video{}, apperr.Validation("video file and thumbnail are required")
	}

	duration, err := s.prober.Duration(ctx, in.VideoPath)
	if err != nil {
		return models.Video{}, apperr.Dependency("failed to read video duration", err)
	}

	videoURL, err := s.media.Upload(ctx, in.VideoPath)
	if err != nil || videoURL == "" {
		return models.Video{}, apperr.Dependency("error while uploading video", err)
	}
	thumbnailURL, err := s.media.Upload(ctx, in.ThumbnailPath)
	if err != nil || thumbnailURL == "" {
		return models.Video{}, apperr.Dependency("error while uploading thumbnail", err)
	}

	now := s.now()
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        in.Title,
		Description:  in.Description,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Duration:     duration,
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return models.Video{}, s.writeError("failed to save video", err)
	}

	logging.FromContext(ctx).Info("video published", "videoId", video.ID, "ownerId", ownerID)
	return video, nil
}

// RecordView appends the video to the account's watch history and counts the view.
func (s *Service) RecordView(ctx context.Context, accountID, videoID string) error {
	ctx, span := logging.StartSpan(ctx, "accounts.RecordView")
	defer span.End()

	if _, err := uuid.Parse(strings.TrimSpace(videoID)); err != nil {
		return apperr.NotFound("video does not exist")
	}
	if _, err := s.videos.FindByID(ctx, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("video does not exist")
		}
		return apperr.Internal("failed to load video", err)
	}

	if err := s.accounts.AppendWatchHistory(ctx, accountID, videoID); err != nil {
		return s.writeError("failed to record watch history", err)
	}
	if err := s.videos.IncrementViews(ctx, videoID); err != nil {
		return s.writeError("failed to count view", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, accountID string) (models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, apperr.NotFound("user does not exist")
		}
		return models.Account{}, apperr.Internal("failed to load account", err)
	}
	return account, nil
}

func (s *Service) writeError(message string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("user does not exist")
	}
	return apperr.Internal(message, err)
}

func checkPasswordLength(password string) error {
	if len(password) > auth.MaxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	return nil
}
