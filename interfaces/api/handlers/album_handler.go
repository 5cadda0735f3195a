package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"phototagger/domain/services"
	"phototagger/pkg/utils"
)

type AlbumHandler struct {
	albumService services.AlbumService
}

func NewAlbumHandler(albumService services.AlbumService) *AlbumHandler {
	return &AlbumHandler{
		albumService: albumService,
	}
}

// Create makes a new empty album
func (h *AlbumHandler) Create(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	var req services.AlbumRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	album, err := h.albumService.Create(c.UserContext(), userCtx.ID, req)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create album", err)
	}

	return utils.CreatedResponse(c, "Album created", album)
}

// List returns the user's albums with image counts and cover IDs
func (h *AlbumHandler) List(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	albums, total, err := h.albumService.List(c.UserContext(), userCtx.ID, page, limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list albums", err)
	}

	return utils.SuccessResponse(c, "Albums retrieved successfully", fiber.Map{
		"albums": albums,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// Get returns one album
func (h *AlbumHandler) Get(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}

	album, err := h.albumService.Get(c.UserContext(), userCtx.ID, albumID)
	if err != nil {
		return albumErrorResponse(c, err, "Failed to get album")
	}

	return utils.SuccessResponse(c, "Album retrieved successfully", album)
}

// Update renames an album or changes its description
func (h *AlbumHandler) Update(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}

	var req services.AlbumRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	album, err := h.albumService.Update(c.UserContext(), userCtx.ID, albumID, req)
	if err != nil {
		return albumErrorResponse(c, err, "Failed to update album")
	}

	return utils.SuccessResponse(c, "Album updated", album)
}

// Delete removes the album. Images stay; only memberships go.
func (h *AlbumHandler) Delete(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}

	if err := h.albumService.Delete(c.UserContext(), userCtx.ID, albumID); err != nil {
		return albumErrorResponse(c, err, "Failed to delete album")
	}

	return utils.SuccessResponse(c, "Album deleted", nil)
}

// AddImage adds an owned image to an owned album; duplicates are no-ops
func (h *AlbumHandler) AddImage(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}
	imageID, err := uuid.Parse(c.Params("imageId"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	if err := h.albumService.AddImage(c.UserContext(), userCtx.ID, albumID, imageID); err != nil {
		return albumErrorResponse(c, err, "Failed to add image to album")
	}

	return utils.SuccessResponse(c, "Image added to album", nil)
}

// RemoveImage drops an image from the album
func (h *AlbumHandler) RemoveImage(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}
	imageID, err := uuid.Parse(c.Params("imageId"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	if err := h.albumService.RemoveImage(c.UserContext(), userCtx.ID, albumID, imageID); err != nil {
		return albumErrorResponse(c, err, "Failed to remove image from album")
	}

	return utils.SuccessResponse(c, "Image removed from album", nil)
}

// GetImages lists the album's images in membership order
func (h *AlbumHandler) GetImages(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	albumID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid album ID", err)
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	images, total, err := h.albumService.GetImages(c.UserContext(), userCtx.ID, albumID, page, limit)
	if err != nil {
		return albumErrorResponse(c, err, "Failed to list album images")
	}

	return utils.SuccessResponse(c, "Album images retrieved successfully", fiber.Map{
		"images": images,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// albumErrorResponse maps album service errors to HTTP statuses
func albumErrorResponse(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrAlbumNotFound):
		return utils.NotFoundResponse(c, "Album not found")
	case errors.Is(err, services.ErrNotAlbumOwner):
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Album belongs to another user", nil)
	case errors.Is(err, services.ErrImageNotFound):
		return utils.NotFoundResponse(c, "Image not found")
	case errors.Is(err, services.ErrNotImageOwner):
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Image belongs to another user", nil)
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, fallback, err)
	}
}
