package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/service/profiles"
)

// AdminHandlers serves the administration overview.
type AdminHandlers struct {
	profiles *profiles.Service
	listings *listings.Service
	log      *zerolog.Logger
}

// NewAdminHandlers creates a new admin handlers instance.
func NewAdminHandlers(profileSvc *profiles.Service, listingSvc *listings.Service, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		profiles: profileSvc,
		listings: listingSvc,
		log:      logger,
	}
}

// AdminProfilesResponse lists every member with the marketplace totals.
type AdminProfilesResponse struct {
	TotalProfiles int                   `json:"total_profiles"`
	TotalListings int                   `json:"total_listings"`
	Profiles      []proto.ProfileRecord `json:"profiles"`
}

// Profiles lists every member for user management.
// GET /api/admin/profiles
func (h *AdminHandlers) Profiles(c *gin.Context) {
	ctx := c.Request.Context()

	ps, err := h.profiles.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list profiles for admin")
		internalError(c)
		return
	}
	ls, err := h.listings.List(ctx, listings.Query{})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to count listings for admin")
		internalError(c)
		return
	}

	resp := AdminProfilesResponse{
		TotalProfiles: len(ps),
		TotalListings: len(ls),
		Profiles:      make([]proto.ProfileRecord, len(ps)),
	}
	for i, p := range ps {
		resp.Profiles[i] = adminProfileRecord(p)
	}
	c.JSON(http.StatusOK, resp)
}
