package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"phototagger/domain/services"
	"phototagger/pkg/utils"
)

type SearchHandler struct {
	searchService services.SearchService
}

func NewSearchHandler(searchService services.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search filters the user's completed images by tags and capture/upload date.
// Tags are comma-separated and any-match; dates accept RFC3339 or YYYY-MM-DD.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	query := services.SearchQuery{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 20),
	}

	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				query.Tags = append(query.Tags, tag)
			}
		}
	}

	if raw := c.Query("from"); raw != "" {
		from, err := parseDate(raw, false)
		if err != nil {
			return utils.BadRequestResponse(c, "Invalid 'from' date", err)
		}
		query.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseDate(raw, true)
		if err != nil {
			return utils.BadRequestResponse(c, "Invalid 'to' date", err)
		}
		query.To = &to
	}

	images, total, err := h.searchService.Search(c.UserContext(), userCtx.ID, query)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Search failed", err)
	}

	return utils.SuccessResponse(c, "Search completed", fiber.Map{
		"images": images,
		"total":  total,
		"page":   query.Page,
		"limit":  query.Limit,
	})
}

// FindDuplicates groups visually near-identical images by perceptual
// fingerprint. Threshold is maximum Hamming distance; omit for the default.
func (h *SearchHandler) FindDuplicates(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	threshold := c.QueryInt("threshold", -1)

	groups, err := h.searchService.FindDuplicates(c.UserContext(), userCtx.ID, threshold)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Duplicate detection failed", err)
	}

	return utils.SuccessResponse(c, "Duplicates computed", fiber.Map{
		"groups": groups,
	})
}

// parseDate accepts RFC3339 timestamps or bare dates. Bare 'to' dates extend
// to end of day so a single-day range matches that day's uploads.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
