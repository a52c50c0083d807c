package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/geo"
	"github.com/vovakirdan/marketchat/internal/proto"
	"github.com/vovakirdan/marketchat/internal/service/listings"
	"github.com/vovakirdan/marketchat/internal/store"
)

const maxListingPage = 200

// ListingHandlers provides HTTP handlers for marketplace listings.
type ListingHandlers struct {
	service *listings.Service
	log     *zerolog.Logger
}

// NewListingHandlers creates a new listing handlers instance.
func NewListingHandlers(svc *listings.Service, logger *zerolog.Logger) *ListingHandlers {
	return &ListingHandlers{
		service: svc,
		log:     logger,
	}
}

// ListingRequest represents the create and update listing body.
// Images are stored URLs to keep or image data URLs to upload.
type ListingRequest struct {
	Name        string         `json:"name" binding:"required,max=120"`
	Description string         `json:"description" binding:"max=5000"`
	Price       int64          `json:"price" binding:"required,gt=0"`
	Images      []string       `json:"images"`
	Category    proto.Category `json:"category"`
	Location    proto.Location `json:"location"`
	Contact     proto.Contact  `json:"contact"`
}

// List searches listings.
// GET /api/listings?q&category&subcategory&province&city&min_price&max_price&seller&limit&lat&lon
func (h *ListingHandlers) List(c *gin.Context) {
	query, err := parseListingQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, err.Error())
		return
	}

	results, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list listings")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, listingResults(results))
}

// AdminList lists every listing for moderation.
// GET /api/admin/listings
func (h *ListingHandlers) AdminList(c *gin.Context) {
	results, err := h.service.List(c.Request.Context(), listings.Query{})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list listings for admin")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, listingResults(results))
}

// Get returns one listing.
// GET /api/listings/:id
func (h *ListingHandlers) Get(c *gin.Context) {
	id, ok := listingIDParam(c)
	if !ok {
		return
	}

	l, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.listingError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, listingRecord(l, nil))
}

// Similar returns listings from the same subcategory.
// GET /api/listings/:id/similar
func (h *ListingHandlers) Similar(c *gin.Context) {
	id, ok := listingIDParam(c)
	if !ok {
		return
	}

	similar, err := h.service.Similar(c.Request.Context(), id)
	if err != nil {
		h.listingError(c, err, id)
		return
	}
	c.JSON(http.StatusOK, listingRecords(similar))
}

// Create publishes a listing owned by the caller.
// POST /api/listings
func (h *ListingHandlers) Create(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	var req ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create listing request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	l, err := h.service.Create(c.Request.Context(), uid, listingInput(req))
	if err != nil {
		h.listingError(c, err, 0)
		return
	}

	h.log.Info().Int64("listing_id", l.ID).Str("seller_id", uid).Msg("listing created")
	c.JSON(http.StatusCreated, listingRecord(l, nil))
}

// Update replaces a listing. Only the seller or an admin may do this.
// PUT /api/listings/:id
func (h *ListingHandlers) Update(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	id, ok := listingIDParam(c)
	if !ok {
		return
	}

	var req ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update listing request")
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	actor := listings.Actor{ID: uid, Admin: c.GetBool(ContextKeyIsAdmin)}
	l, err := h.service.Update(c.Request.Context(), actor, id, listingInput(req))
	if err != nil {
		h.listingError(c, err, id)
		return
	}

	h.log.Info().Int64("listing_id", id).Str("user_id", uid).Msg("listing updated")
	c.JSON(http.StatusOK, listingRecord(l, nil))
}

// Delete removes a listing with its chats.
// DELETE /api/listings/:id
func (h *ListingHandlers) Delete(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	id, ok := listingIDParam(c)
	if !ok {
		return
	}

	actor := listings.Actor{ID: uid, Admin: c.GetBool(ContextKeyIsAdmin)}
	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		h.listingError(c, err, id)
		return
	}

	h.log.Info().Int64("listing_id", id).Str("user_id", uid).Msg("listing deleted")
	c.Status(http.StatusNoContent)
}

func (h *ListingHandlers) listingError(c *gin.Context, err error, id int64) {
	switch {
	case errors.Is(err, listings.ErrListingNotFound):
		writeError(c, http.StatusNotFound, core.ErrCodeListingNotFound, "listing not found")
	case errors.Is(err, listings.ErrForbidden):
		writeError(c, http.StatusForbidden, core.ErrCodeForbidden, "only the seller or an admin may change this listing")
	case errors.Is(err, listings.ErrInvalidListing):
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Int64("listing_id", id).Msg("listing request failed")
		internalError(c)
	}
}

func listingIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid listing id")
		return 0, false
	}
	return id, true
}

func parseListingQuery(c *gin.Context) (listings.Query, error) {
	q := listings.Query{Filter: store.ListingFilter{
		Query:             c.Query("q"),
		CategoryPrimary:   c.Query("category"),
		CategorySecondary: c.Query("subcategory"),
		Province:          c.Query("province"),
		City:              c.Query("city"),
		SellerID:          c.Query("seller"),
	}}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"min_price", &q.Filter.MinPrice},
		{"max_price", &q.Filter.MaxPrice},
	}
	for _, p := range ints {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return q, errors.New("invalid " + p.name)
		}
		*p.dst = v
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return q, errors.New("invalid limit")
		}
		q.Filter.Limit = min(limit, maxListingPage)
	}

	lat, lon := c.Query("lat"), c.Query("lon")
	if lat == "" && lon == "" {
		return q, nil
	}
	var origin geo.Point
	var errLat, errLon error
	origin.Lat, errLat = strconv.ParseFloat(lat, 64)
	origin.Lon, errLon = strconv.ParseFloat(lon, 64)
	if errLat != nil || errLon != nil || !origin.Valid() {
		return q, errors.New("invalid lat/lon")
	}
	q.Origin = &origin
	return q, nil
}
