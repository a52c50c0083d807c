package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
	"github.com/vovakirdan/marketchat/internal/service/wishlist"
)

// UserHandlers provides HTTP handlers for profile and wishlist operations.
type UserHandlers struct {
	profiles *profiles.Service
	wishlist *wishlist.Service
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(profileSvc *profiles.Service, wishlistSvc *wishlist.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		profiles: profileSvc,
		wishlist: wishlistSvc,
		log:      logger,
	}
}

// UpdateProfileRequest represents the profile update body. Absent fields are left unchanged.
type UpdateProfileRequest struct {
	Name           *string `json:"name"`
	WhatsappNumber *string `json:"whatsapp_number"`
	Avatar         *string `json:"avatar"`
	Password       *string `json:"password"`
}

// WishlistToggleResponse reports the wishlist after a toggle.
type WishlistToggleResponse struct {
	Saved    bool    `json:"saved"`
	Wishlist []int64 `json:"wishlist"`
}

// Me returns the caller's own profile.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	p, err := h.profiles.Get(c.Request.Context(), uid)
	if err != nil {
		h.profileError(c, err, uid)
		return
	}
	c.JSON(http.StatusOK, profileRecord(p, true))
}

// UpdateMe updates the caller's profile.
// PATCH /api/me
func (h *UserHandlers) UpdateMe(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update profile request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	p, err := h.profiles.Update(c.Request.Context(), uid, profiles.Update{
		Name:           req.Name,
		WhatsappNumber: req.WhatsappNumber,
		Avatar:         req.Avatar,
		Password:       req.Password,
	})
	if err != nil {
		h.profileError(c, err, uid)
		return
	}

	h.log.Info().Str("user_id", uid).Msg("profile updated")
	c.JSON(http.StatusOK, profileRecord(p, true))
}

// GetProfile returns the public profile of a user.
// GET /api/profiles/:id
func (h *UserHandlers) GetProfile(c *gin.Context) {
	id := c.Param("id")
	p, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		h.profileError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, profileRecord(p, c.GetString(ContextKeyUserID) == p.ID))
}

// ToggleWishlist adds or removes a listing from the caller's wishlist.
// POST /api/me/wishlist/:listingId
func (h *UserHandlers) ToggleWishlist(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	listingID, err := strconv.ParseInt(c.Param("listingId"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid listing id")
		return
	}

	p, saved, err := h.wishlist.Toggle(c.Request.Context(), uid, listingID)
	if err != nil {
		switch {
		case errors.Is(err, wishlist.ErrListingNotFound):
			writeError(c, http.StatusNotFound, core.ErrCodeListingNotFound, "listing not found")
		case errors.Is(err, wishlist.ErrProfileNotFound):
			writeError(c, http.StatusNotFound, core.ErrCodeNotFound, "profile not found")
		default:
			h.log.Error().Err(err).Str("user_id", uid).Int64("listing_id", listingID).Msg("failed to toggle wishlist")
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, WishlistToggleResponse{Saved: saved, Wishlist: p.Wishlist})
}

// Wishlist lists the caller's saved listings.
// GET /api/me/wishlist
func (h *UserHandlers) Wishlist(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	saved, err := h.wishlist.Listings(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, wishlist.ErrProfileNotFound) {
			writeError(c, http.StatusNotFound, core.ErrCodeNotFound, "profile not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list wishlist")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, listingRecords(saved))
}

func (h *UserHandlers) profileError(c *gin.Context, err error, id string) {
	switch {
	case errors.Is(err, profiles.ErrProfileNotFound):
		writeError(c, http.StatusNotFound, core.ErrCodeNotFound, "profile not found")
	case errors.Is(err, profiles.ErrInvalidProfile):
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("user_id", id).Msg("profile request failed")
		internalError(c)
	}
}
