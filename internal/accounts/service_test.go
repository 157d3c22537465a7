package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/auth"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/repositories"
)

type fakeUploader struct {
	mu       sync.Mutex
	uploaded []string
	fail     map[string]error
}

func (u *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.fail[localPath]; err != nil {
		return "", err
	}
	u.uploaded = append(u.uploaded, localPath)
	return "https://cdn.example.com/" + strings.TrimPrefix(localPath, "/tmp/"), nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) Duration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type harness struct {
	svc      *Service
	store    repositories.Store
	uploader *fakeUploader
	tokens   *auth.Manager
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := repositories.NewMemoryStore().Store()
	tokens := auth.NewManager(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    240 * time.Hour,
		Issuer:        "vidfriends-test",
	}, store.Accounts)
	uploader := &fakeUploader{fail: map[string]error{}}
	svc := NewService(store, tokens, auth.NewBcryptHasher(bcrypt.MinCost), uploader, fakeProber{duration: 42.5})
	return harness{svc: svc, store: store, uploader: uploader, tokens: tokens}
}

func registerInput(handle string) RegisterInput {
	return RegisterInput{
		FullName:   "Test " + handle,
		Email:      handle + "@example.com",
		Handle:     handle,
		Password:   "supersafe",
		AvatarPath: "/tmp/" + handle + "-avatar.png",
	}
}

func (h harness) register(t *testing.T, handle string) models.PublicAccount {
	t.Helper()
	account, err := h.svc.Register(context.Background(), registerInput(handle))
	require.NoError(t, err)
	return account
}

func TestRegisterCreatesSanitizedAccount(t *testing.T) {
	h := newHarness(t)

	in := registerInput("Alice")
	in.Email = "  Alice@Example.com "
	in.CoverPath = "/tmp/alice-cover.png"

	account, err := h.svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "alice", account.Handle)
	require.Equal(t, "alice@example.com", account.Email)
	require.Equal(t, "https://cdn.example.com/Alice-avatar.png", account.Avatar)
	require.Equal(t, "https://cdn.example.com/alice-cover.png", account.CoverImage)
	require.NotNil(t, account.WatchHistory)

	stored, err := h.store.Accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotEqual(t, "supersafe", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("supersafe")))
	require.Empty(t, stored.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	cases := map[string]struct {
		mutate  func(*RegisterInput)
		message string
	}{
		"blank handle": {
			mutate:  func(in *RegisterInput) { in.Handle = "   " },
			message: "all fields are required",
		},
		"blank password": {
			mutate:  func(in *RegisterInput) { in.Password = "" },
			message: "all fields are required",
		},
		"bad email": {
			mutate:  func(in *RegisterInput) { in.Email = "not-an-email" },
			message: "invalid email address",
		},
		"password too long": {
			mutate:  func(in *RegisterInput) { in.Password = strings.Repeat("x", 80) },
			message: "password must be at most 72 bytes",
		},
		"missing avatar": {
			mutate:  func(in *RegisterInput) { in.AvatarPath = "" },
			message: "avatar file is required",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := registerInput("bob")
			tc.mutate(&in)

			_, err := h.svc.Register(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			require.Equal(t, tc.message, apperr.From(err).Message)
		})
	}
}

func TestRegisterLongPasswordUploadsNothing(t *testing.T) {
	h := newHarness(t)

	in := registerInput("frank")
	in.CoverPath = "/tmp/frank-cover.png"
	in.Password = strings.Repeat("p", auth.MaxPasswordBytes+1)

	_, err := h.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Empty(t, h.uploader.uploaded)

	in.Password = strings.Repeat("p", auth.MaxPasswordBytes)
	_, err = h.svc.Register(context.Background(), in)
	require.NoError(t, err)
}

func TestRegisterListsEveryMissingField(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterInput{AvatarPath: "/tmp/a.png"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Len(t, apperr.From(err).Details, 4)
}

func TestRegisterRejectsDuplicatesInAnyCase(t *testing.T) {
	h := newHarness(t)
	h.register(t, "carol")

	in := registerInput("CAROL")
	in.Email = "other@example.com"
	_, err := h.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrConflict)

	in = registerInput("carol2")
	in.Email = "Carol@Example.com"
	_, err = h.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterAvatarUploadFailure(t *testing.T) {
	h := newHarness(t)
	in := registerInput("dave")
	h.uploader.fail[in.AvatarPath] = errors.New("bucket unavailable")

	_, err := h.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrDependency)

	_, err = h.store.Accounts.FindByHandle(context.Background(), "dave")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRegisterCoverUploadFailureLeavesCoverEmpty(t *testing.T) {
	h := newHarness(t)
	in := registerInput("erin")
	in.CoverPath = "/tmp/erin-cover.png"
	h.uploader.fail[in.CoverPath] = errors.New("bucket unavailable")

	account, err := h.svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, account.CoverImage)
}

func TestLoginWithHandleOrEmail(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "frank")

	for _, identifier := range []string{"frank", "FRANK", "frank@example.com"} {
		session, err := h.svc.Login(context.Background(), identifier, "supersafe")
		require.NoError(t, err, identifier)
		require.Equal(t, registered.ID, session.Account.ID)
		require.NotEmpty(t, session.Tokens.AccessToken)

		stored, err := h.store.Accounts.FindByID(context.Background(), registered.ID)
		require.NoError(t, err)
		require.Equal(t, session.Tokens.RefreshToken, stored.RefreshToken)
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)
	h.register(t, "grace")

	_, err := h.svc.Login(context.Background(), "nobody", "supersafe")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Equal(t, "user does not exist", apperr.From(err).Message)

	_, err = h.svc.Login(context.Background(), "grace", "wrong")
	require.ErrorIs(t, err, apperr.ErrAuthentication)

	_, err = h.svc.Login(context.Background(), "", "supersafe")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRefreshRotatesOnceAndLogoutRevokes(t *testing.T) {
	h := newHarness(t)
	h.register(t, "heidi")

	session, err := h.svc.Login(context.Background(), "heidi", "supersafe")
	require.NoError(t, err)

	rotated, err := h.svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, session.Tokens.RefreshToken, rotated.RefreshToken)

	_, err = h.svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication)

	require.NoError(t, h.svc.Logout(context.Background(), session.Account.ID))
	require.NoError(t, h.svc.Logout(context.Background(), session.Account.ID))

	_, err = h.svc.Refresh(context.Background(), rotated.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication)

	_, err = h.svc.Refresh(context.Background(), "  ")
	require.ErrorIs(t, err, apperr.ErrAuthentication)
	require.Equal(t, "unauthorized request", apperr.From(err).Message)
}

func TestRefreshForDeletedAccount(t *testing.T) {
	h := newHarness(t)

	token, err := h.tokens.IssueRefreshToken(models.Account{ID: uuid.NewString()})
	require.NoError(t, err)

	_, err = h.svc.Refresh(context.Background(), token)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "ivan")

	stored, err := h.store.Accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	before := stored.PasswordHash

	err = h.svc.ChangePassword(context.Background(), account.ID, "wrong", "brand-new")
	require.ErrorIs(t, err, apperr.ErrAuthentication)

	stored, err = h.store.Accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, before, stored.PasswordHash)

	err = h.svc.ChangePassword(context.Background(), account.ID, "supersafe", "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	err = h.svc.ChangePassword(context.Background(), account.ID, "supersafe", strings.Repeat("n", 80))
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, "password must be at most 72 bytes", apperr.From(err).Message)

	require.NoError(t, h.svc.ChangePassword(context.Background(), account.ID, "supersafe", "brand-new"))

	_, err = h.svc.Login(context.Background(), "ivan", "supersafe")
	require.ErrorIs(t, err, apperr.ErrAuthentication)
	_, err = h.svc.Login(context.Background(), "ivan", "brand-new")
	require.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	h.register(t, "judy")

	session, err := h.svc.Login(context.Background(), "judy", "supersafe")
	require.NoError(t, err)

	account, err := h.svc.Authenticate(context.Background(), session.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.Account.ID, account.ID)

	for _, token := range []string{"", "garbage", session.Tokens.RefreshToken} {
		_, err := h.svc.Authenticate(context.Background(), token)
		require.ErrorIs(t, err, apperr.ErrAuthentication)
	}

	orphan, err := h.tokens.IssueAccessToken(models.Account{ID: uuid.NewString()})
	require.NoError(t, err)
	_, err = h.svc.Authenticate(context.Background(), orphan)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
}

func TestUpdateDetailsAndMedia(t *testing.T) {
	h := newHarness(t)
	account := h.register(t, "ken")
	other := h.register(t, "lena")

	updated, err := h.svc.UpdateDetails(context.Background(), account.ID, "Ken Thompson", "KEN@unix.dev")
	require.NoError(t, err)
	require.Equal(t, "Ken Thompson", updated.FullName)
	require.Equal(t, "ken@unix.dev", updated.Email)

	_, err = h.svc.UpdateDetails(context.Background(), account.ID, "Ken", other.Email)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.UpdateDetails(context.Background(), account.ID, "", "ken@unix.dev")
	require.ErrorIs(t, err, apperr.ErrValidation)

	updated, err = h.svc.UpdateAvatar(context.Background(), account.ID, "/tmp/new-avatar.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/new-avatar.png", updated.Avatar)

	updated, err = h.svc.UpdateCoverImage(context.Background(), account.ID, "/tmp/new-cover.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/new-cover.png", updated.CoverImage)

	_, err = h.svc.UpdateAvatar(context.Background(), account.ID, "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	h.uploader.fail["/tmp/broken.png"] = errors.New("bucket unavailable")
	_, err = h.svc.UpdateCoverImage(context.Background(), account.ID, "/tmp/broken.png")
	require.ErrorIs(t, err, apperr.ErrDependency)

	_, err = h.svc.CurrentAccount(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPublishVideoAndRecordView(t *testing.T) {
	h := newHarness(t)
	owner := h.register(t, "mallory")
	viewer := h.register(t, "niaj")

	_, err := h.svc.PublishVideo(context.Background(), owner.ID, PublishInput{Title: "clip"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = h.svc.PublishVideo(context.Background(), owner.ID, PublishInput{Title: "clip", Description: "d"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, "video file and thumbnail are required", apperr.From(err).Message)

	video, err := h.svc.PublishVideo(context.Background(), owner.ID, PublishInput{
		Title:         " clip ",
		Description:   "a short clip",
		VideoPath:     "/tmp/clip.mp4",
		ThumbnailPath: "/tmp/clip.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, "clip", video.Title)
	require.Equal(t, 42.5, video.Duration)
	require.Equal(t, "https://cdn.example.com/clip.mp4", video.VideoURL)
	require.True(t, video.Published)

	require.NoError(t, h.svc.RecordView(context.Background(), viewer.ID, video.ID))
	require.NoError(t, h.svc.RecordView(context.Background(), viewer.ID, video.ID))

	stored, err := h.store.Videos.FindByID(context.Background(), video.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Views)

	current, err := h.svc.CurrentAccount(context.Background(), viewer.ID)
	require.NoError(t, err)
	require.Equal(t, []string{video.ID, video.ID}, current.WatchHistory)

	err = h.svc.RecordView(context.Background(), viewer.ID, "not-a-uuid")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	err = h.svc.RecordView(context.Background(), viewer.ID, uuid.NewString())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPublishVideoProbeFailure(t *testing.T) {
	h := newHarness(t)
	owner := h.register(t, "olivia")
	h.svc.prober = fakeProber{err: errors.New("ffprobe: not found")}

	_, err := h.svc.PublishVideo(context.Background(), owner.ID, PublishInput{
		Title:         "clip",
		Description:   "desc",
		VideoPath:     "/tmp/clip.mp4",
		ThumbnailPath: "/tmp/clip.jpg",
	})
	require.ErrorIs(t, err, apperr.ErrDependency)
}
