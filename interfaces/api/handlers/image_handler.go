package handlers

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"phototagger/domain/models"
	"phototagger/domain/services"
	"phototagger/pkg/logger"
	"phototagger/pkg/utils"
)

type ImageHandler struct {
	imageService services.ImageService
	urlExpiry    time.Duration
}

func NewImageHandler(imageService services.ImageService, urlExpiry time.Duration) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
		urlExpiry:    urlExpiry,
	}
}

type addTagRequest struct {
	Label      string  `json:"label" validate:"required,min=1,max=64"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Upload accepts a multipart batch of images. Each file is validated, stored,
// and queued independently; a rejected file does not abort the batch.
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.BadRequestResponse(c, "Expected multipart form data", err)
	}

	files := form.File["images"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return utils.BadRequestResponse(c, "No files in upload", nil)
	}

	items := make([]services.UploadItem, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return utils.BadRequestResponse(c, "Failed to read uploaded file", err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return utils.BadRequestResponse(c, "Failed to read uploaded file", err)
		}

		items = append(items, services.UploadItem{
			Filename: fileHeader.Filename,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Size:     fileHeader.Size,
			Data:     data,
		})
	}

	results, err := h.imageService.Upload(c.UserContext(), userCtx.ID, items)
	if err != nil {
		logger.API("upload_error", "Upload batch failed", map[string]interface{}{
			"user_id": userCtx.ID.String(),
			"error":   err.Error(),
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Upload failed", err)
	}

	return utils.CreatedResponse(c, "Upload accepted", fiber.Map{
		"results": results,
	})
}

// List returns the user's images, newest first
func (h *ImageHandler) List(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	images, total, err := h.imageService.List(c.UserContext(), userCtx.ID, page, limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list images", err)
	}

	return utils.SuccessResponse(c, "Images retrieved successfully", fiber.Map{
		"images": images,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// Get returns one image with its merged tags and signed URLs
func (h *ImageHandler) Get(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	detail, err := h.imageService.Get(c.UserContext(), userCtx.ID, imageID)
	if err != nil {
		return imageErrorResponse(c, err, "Failed to get image")
	}

	return utils.SuccessResponse(c, "Image retrieved successfully", detail)
}

// GetStatus reports processing progress for upload polling
func (h *ImageHandler) GetStatus(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	status, err := h.imageService.GetProcessingStatus(c.UserContext(), userCtx.ID, imageID)
	if err != nil {
		return imageErrorResponse(c, err, "Failed to get processing status")
	}

	return utils.SuccessResponse(c, "Status retrieved successfully", status)
}

// Delete removes the image record, its blobs, and its album memberships
func (h *ImageHandler) Delete(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	if err := h.imageService.Delete(c.UserContext(), userCtx.ID, imageID); err != nil {
		return imageErrorResponse(c, err, "Failed to delete image")
	}

	logger.API("image_deleted", "Image deleted", map[string]interface{}{
		"user_id":  userCtx.ID.String(),
		"image_id": imageID.String(),
	})

	return utils.SuccessResponse(c, "Image deleted", nil)
}

// AddTag upserts a user tag on the image
func (h *ImageHandler) AddTag(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	var req addTagRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	if err := h.imageService.AddTag(c.UserContext(), userCtx.ID, imageID, req.Label, req.Confidence); err != nil {
		return imageErrorResponse(c, err, "Failed to add tag")
	}

	return utils.CreatedResponse(c, "Tag added", nil)
}

// RemoveTag deletes one tag by label. Source defaults to "user"; model tags
// can be removed explicitly with ?source=model.
func (h *ImageHandler) RemoveTag(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	label := c.Params("label")
	if label == "" {
		return utils.BadRequestResponse(c, "Missing tag label", nil)
	}

	source := models.TagSource(c.Query("source", string(models.TagSourceUser)))
	if source != models.TagSourceUser && source != models.TagSourceModel {
		return utils.BadRequestResponse(c, "Invalid tag source", nil)
	}

	if err := h.imageService.RemoveTag(c.UserContext(), userCtx.ID, imageID, label, source); err != nil {
		return imageErrorResponse(c, err, "Failed to remove tag")
	}

	return utils.SuccessResponse(c, "Tag removed", nil)
}

// GetSignedURL issues a time-limited download link
func (h *ImageHandler) GetSignedURL(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	imageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.BadRequestResponse(c, "Invalid image ID", err)
	}

	thumbnail := c.QueryBool("thumbnail", false)

	url, err := h.imageService.SignedURL(c.UserContext(), userCtx.ID, imageID, thumbnail, h.urlExpiry)
	if err != nil {
		return imageErrorResponse(c, err, "Failed to sign URL")
	}

	return utils.SuccessResponse(c, "URL signed", fiber.Map{
		"url":        url,
		"expires_in": h.urlExpiry.Seconds(),
	})
}

// imageErrorResponse maps image service errors to HTTP statuses
func imageErrorResponse(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrImageNotFound):
		return utils.NotFoundResponse(c, "Image not found")
	case errors.Is(err, services.ErrNotImageOwner):
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Image belongs to another user", nil)
	case errors.Is(err, services.ErrTagNotFound):
		return utils.NotFoundResponse(c, "Tag not found")
	case errors.Is(err, services.ErrUnsupportedUpload):
		return utils.BadRequestResponse(c, "Unsupported file type", err)
	case errors.Is(err, services.ErrUploadTooLarge):
		return utils.ErrorResponse(c, fiber.StatusRequestEntityTooLarge, "File too large", err)
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, fallback, err)
	}
}
