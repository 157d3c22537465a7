package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidfriends/accounts/internal/respond"
)

// ChannelHandler serves channel profiles, watch history and subscriptions.
type ChannelHandler struct {
	Channels ChannelService
}

// Profile handles GET /api/v1/users/c/{username}.
func (h ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) error {
	viewerID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	profile, err := h.Channels.ChannelProfile(r.Context(), chi.URLParam(r, "username"), viewerID)
	if err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, profile, "user channel fetched successfully")
	return nil
}

// History handles GET /api/v1/users/history.
func (h ChannelHandler) History(w http.ResponseWriter, r *http.Request) error {
	accountID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	history, err := h.Channels.WatchHistory(r.Context(), accountID)
	if err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, history, "watch history fetched successfully")
	return nil
}

// Subscribe handles POST /api/v1/subscriptions/c/{username}.
func (h ChannelHandler) Subscribe(w http.ResponseWriter, r *http.Request) error {
	subscriberID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	profile, err := h.Channels.Subscribe(r.Context(), subscriberID, chi.URLParam(r, "username"))
	if err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, profile, "subscribed successfully")
	return nil
}

// Unsubscribe handles DELETE /api/v1/subscriptions/c/{username}.
func (h ChannelHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) error {
	subscriberID, err := currentAccountID(r)
	if err != nil {
		return err
	}

	profile, err := h.Channels.Unsubscribe(r.Context(), subscriberID, chi.URLParam(r, "username"))
	if err != nil {
		return err
	}

	respond.JSON(r.Context(), w, http.StatusOK, profile, "unsubscribed successfully")
	return nil
}
