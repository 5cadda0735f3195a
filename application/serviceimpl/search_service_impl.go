package serviceimpl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/domain/services"
	"phototagger/pkg/logger"
	"phototagger/pkg/phash"
)

type SearchServiceImpl struct {
	imageRepo        repositories.ImageRepository
	hashEngine       *phash.Engine
	defaultThreshold int
}

func NewSearchService(imageRepo repositories.ImageRepository, hashEngine *phash.Engine, defaultThreshold int) services.SearchService {
	return &SearchServiceImpl{
		imageRepo:        imageRepo,
		hashEngine:       hashEngine,
		defaultThreshold: defaultThreshold,
	}
}

func (s *SearchServiceImpl) Search(ctx context.Context, userID uuid.UUID, query services.SearchQuery) ([]models.Image, int64, error) {
	offset, limit := paginate(query.Page, query.Limit)
	return s.imageRepo.Search(ctx, userID, query.Tags, query.From, query.To, offset, limit)
}

func (s *SearchServiceImpl) FindDuplicates(ctx context.Context, userID uuid.UUID, threshold int) ([]services.DuplicateGroup, error) {
	if threshold < 0 {
		threshold = s.defaultThreshold
	}

	images, err := s.imageRepo.GetCompletedWithFingerprint(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprinted images: %w", err)
	}

	groups := groupDuplicates(s.hashEngine, images, threshold)

	logger.API("duplicates", "Duplicate grouping computed", map[string]interface{}{
		"user_id":   userID.String(),
		"images":    len(images),
		"groups":    len(groups),
		"threshold": threshold,
	})
	return groups, nil
}

// groupDuplicates clusters fingerprinted images by greedy seed expansion:
// each unvisited image seeds a group and absorbs every remaining unvisited
// image within threshold Hamming distance of the seed. An image joins at
// most one group; groups with a single member are dropped.
//
// Chained near-duplicates split deliberately: a member close to the seed
// but far from another member still lands in the seed's group, while an
// image close to a member but not the seed starts its own.
func groupDuplicates(engine *phash.Engine, images []models.Image, threshold int) []services.DuplicateGroup {
	visited := make([]bool, len(images))
	groups := make([]services.DuplicateGroup, 0)

	for i := range images {
		if visited[i] {
			continue
		}
		visited[i] = true
		member := []int{i}

		for j := i + 1; j < len(images); j++ {
			if visited[j] {
				continue
			}
			dist, err := engine.Distance(images[i].PHash, images[j].PHash)
			if err != nil {
				// Incompatible fingerprint widths never group together
				continue
			}
			if dist <= threshold {
				visited[j] = true
				member = append(member, j)
			}
		}

		if len(member) < 2 {
			continue
		}

		ids := make([]uuid.UUID, len(member))
		for k, idx := range member {
			ids[k] = images[idx].ID
		}

		groups = append(groups, services.DuplicateGroup{
			ImageIDs:   ids,
			Similarity: meanPairwiseSimilarity(engine, images, member),
		})
	}

	return groups
}

// meanPairwiseSimilarity averages similarity over every pair in the group.
func meanPairwiseSimilarity(engine *phash.Engine, images []models.Image, member []int) float64 {
	var sum float64
	var pairs int

	for a := 0; a < len(member); a++ {
		for b := a + 1; b < len(member); b++ {
			sim, err := engine.Similarity(images[member[a]].PHash, images[member[b]].PHash)
			if err != nil {
				continue
			}
			sum += sim
			pairs++
		}
	}

	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
