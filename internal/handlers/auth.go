package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vidfriends/accounts/internal/accounts"
	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/middleware"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/respond"
	"github.com/vidfriends/accounts/internal/storage"
)

// AuthHandler implements registration, session and profile endpoints under /users.
type AuthHandler struct {
	Accounts  AccountService
	UploadDir string
	cookies   cookieJar
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type sessionResponse struct {
	User         models.PublicAccount `json:"user"`
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
}

// Register handles POST /api/v1/users/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	form, err := stageMultipart(r, h.UploadDir, "avatar", "coverImage")
	if err != nil {
		return err
	}
	defer storage.Discard(ctx, form.paths()...)

	account, err := h.Accounts.Register(ctx, accounts.RegisterInput{
		FullName:   form.Value("fullName"),
		Email:      form.Value("email"),
		Handle:     form.Value("username"),
		Password:   form.Value("password"),
		AvatarPath: form.File("avatar"),
		CoverPath:  form.File("coverImage"),
	})
	if err != nil {
		return err
	}

	respond.JSON(ctx, w, http.StatusCreated, account, "user registered successfully")
	return nil
}

// Login handles POST /api/v1/users/login. The identifier may be a username or an email.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req loginRequest
	err := decode(r, &req, func(v url.Values) {
		req.Username, req.Email, req.Password = v.Get("username"), v.Get("email"), v.Get("password")
	})
	if err != nil {
		return err
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	session, err := h.Accounts.Login(ctx, identifier, req.Password)
	if err != nil {
		return err
	}

	h.cookies.set(w, session.Tokens)
	respond.JSON(ctx, w, http.StatusOK, sessionResponse{
		User:         session.Account,
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	}, "user logged in successfully")
	return nil
}

// Logout handles POST /api/v1/users/logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}
	if err := h.Accounts.Logout(r.Context(), accountID); err != nil {
		return err
	}

	h.cookies.clear(w)
	respond.JSON(r.Context(), w, http.StatusOK, struct{}{}, "user logged out")
	return nil
}

// Refresh handles POST /api/v1/users/refresh-token. The cookie wins over the body.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var token string
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decode(r, &req, func(v url.Values) { req.RefreshToken = v.Get("refreshToken") }); err != nil {
			return err
		}
		token = req.RefreshToken
	}

	tokens, err := h.Accounts.Refresh(ctx, token)
	if err != nil {
		return err
	}

	h.cookies.set(w, tokens)
	respond.JSON(ctx, w, http.StatusOK, tokens, "access token refreshed")
	return nil
}

// ChangePassword handles POST /api/v1/users/change-password.
func (h AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	err = decode(r, &req, func(v url.Values) {
		req.OldPassword, req.NewPassword = v.Get("oldPassword"), v.Get("newPassword")
	})
	if err != nil {
		return err
	}

	if err := h.Accounts.ChangePassword(r.Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, struct{}{}, "password changed successfully")
	return nil
}

// CurrentUser handles GET /api/v1/users/current-user.
func (h AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) error {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		return apperr.Unauthorized("unauthorized request")
	}
	respond.JSON(r.Context(), w, http.StatusOK, account, "current user fetched successfully")
	return nil
}

// UpdateAccount handles PATCH /api/v1/users/update-account.
func (h AuthHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) error {
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	var req updateAccountRequest
	err = decode(r, &req, func(v url.Values) { req.FullName, req.Email = v.Get("fullName"), v.Get("email") })
	if err != nil {
		return err
	}

	account, err := h.Accounts.UpdateDetails(r.Context(), accountID, req.FullName, req.Email)
	if err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, account, "account details updated successfully")
	return nil
}

// UpdateAvatar handles PATCH /api/v1/users/avatar.
func (h AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, "avatar", h.Accounts.UpdateAvatar, "avatar updated successfully")
}

// UpdateCoverImage handles PATCH /api/v1/users/cover-image.
func (h AuthHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, "coverImage", h.Accounts.UpdateCoverImage, "cover image updated successfully")
}

type imageUpdate func(ctx context.Context, accountID, localPath string) (models.PublicAccount, error)

func (h AuthHandler) replaceImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdate, message string) error {
	ctx := r.Context()
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	form, err := stageMultipart(r, h.UploadDir, field)
	if err != nil {
		return err
	}
	defer storage.Discard(ctx, form.paths()...)

	account, err := update(ctx, accountID, form.File(field))
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("account image replaced", "accountId", accountID, "field", field)
	respond.JSON(ctx, w, http.StatusOK, account, message)
	return nil
}
