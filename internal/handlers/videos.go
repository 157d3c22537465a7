package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidfriends/accounts/internal/accounts"
	"github.com/vidfriends/accounts/internal/respond"
	"github.com/vidfriends/accounts/internal/storage"
)

// VideoHandler provides endpoints for publishing and watching videos.
type VideoHandler struct {
	Videos    VideoService
	UploadDir string
}

// Publish handles POST /api/v1/videos.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	ownerID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	form, err := stageMultipart(r, h.UploadDir, "videoFile", "thumbnail")
	if err != nil {
		return err
	}
	defer storage.Discard(ctx, form.paths()...)

	video, err := h.Videos.PublishVideo(ctx, ownerID, accounts.PublishInput{
		Title:         form.Value("title"),
		Description:   form.Value("description"),
		VideoPath:     form.File("videoFile"),
		ThumbnailPath: form.File("thumbnail"),
	})
	if err != nil {
		return err
	}

	respond.JSON(ctx, w, http.StatusCreated, video, "video published successfully")
	return nil
}

// RecordView handles POST /api/v1/videos/{videoId}/views.
func (h VideoHandler) RecordView(w http.ResponseWriter, r *http.Request) error {
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	if err := h.Videos.RecordView(r.Context(), accountID, chi.URLParam(r, "videoId")); err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, struct{}{}, "view recorded")
	return nil
}
