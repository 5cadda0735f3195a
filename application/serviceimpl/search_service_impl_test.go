package serviceimpl

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"phototagger/domain/models"
	"phototagger/domain/services"
	"phototagger/pkg/phash"
)

func fingerprinted(fp string) models.Image {
	return models.Image{
		ID:     uuid.New(),
		PHash:  fp,
		Status: models.ImageStatusCompleted,
	}
}

func TestGroupDuplicatesIdenticalFingerprints(t *testing.T) {
	engine := phash.NewEngine(8)
	images := []models.Image{
		fingerprinted("aaaaaaaaaaaaaaaa"),
		fingerprinted("aaaaaaaaaaaaaaaa"),
		fingerprinted("ffffffffffffffff"),
	}

	groups := groupDuplicates(engine, images, 0)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group at threshold 0, got %d", len(groups))
	}
	if len(groups[0].ImageIDs) != 2 {
		t.Errorf("expected 2 members, got %d", len(groups[0].ImageIDs))
	}
	if groups[0].Similarity != 1 {
		t.Errorf("identical fingerprints should have similarity 1, got %f", groups[0].Similarity)
	}
}

func TestGroupDuplicatesThresholdZeroSplitsNearMisses(t *testing.T) {
	engine := phash.NewEngine(8)
	// One bit apart
	images := []models.Image{
		fingerprinted("0000000000000000"),
		fingerprinted("0000000000000001"),
	}

	if groups := groupDuplicates(engine, images, 0); len(groups) != 0 {
		t.Errorf("threshold 0 must only group identical fingerprints, got %d groups", len(groups))
	}
	if groups := groupDuplicates(engine, images, 1); len(groups) != 1 {
		t.Errorf("threshold 1 should group one-bit neighbors, got %d groups", len(groups))
	}
}

func TestGroupDuplicatesSimilarityThreeBits(t *testing.T) {
	engine := phash.NewEngine(8)
	// 3 differing bits on 64: similarity 1 - 3/64 = 0.953125
	images := []models.Image{
		fingerprinted("0000000000000000"),
		fingerprinted("0000000000000007"),
	}

	groups := groupDuplicates(engine, images, 8)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	want := 1 - 3.0/64.0
	if math.Abs(groups[0].Similarity-want) > 1e-9 {
		t.Errorf("expected similarity %f, got %f", want, groups[0].Similarity)
	}
}

func TestGroupDuplicatesThresholdMonotonicity(t *testing.T) {
	engine := phash.NewEngine(8)
	images := []models.Image{
		fingerprinted("0000000000000000"),
		fingerprinted("0000000000000003"), // 2 bits from seed
		fingerprinted("00000000000000ff"), // 8 bits from seed
		fingerprinted("ffffffffffffffff"),
	}

	grouped := func(threshold int) int {
		total := 0
		for _, g := range groupDuplicates(engine, images, threshold) {
			total += len(g.ImageIDs)
		}
		return total
	}

	prev := 0
	for _, threshold := range []int{0, 2, 8, 64} {
		count := grouped(threshold)
		if count < prev {
			t.Errorf("grouped image count must not shrink as threshold grows: %d -> %d at threshold %d",
				prev, count, threshold)
		}
		prev = count
	}

	if grouped(64) != len(images) {
		t.Errorf("at threshold 64 every image should group, got %d of %d", grouped(64), len(images))
	}
}

func TestGroupDuplicatesSeedAbsorption(t *testing.T) {
	engine := phash.NewEngine(8)
	// a-b within 4, b-c within 4, a-c at 8: c joins a's group only through
	// the seed comparison, so at threshold 4 it starts alone
	a := fingerprinted("0000000000000000")
	b := fingerprinted("000000000000000f") // 4 bits from a
	c := fingerprinted("00000000000000ff") // 8 bits from a, 4 from b
	images := []models.Image{a, b, c}

	groups := groupDuplicates(engine, images, 4)

	if len(groups) != 1 {
		t.Fatalf("expected exactly 1 group, got %d", len(groups))
	}
	if len(groups[0].ImageIDs) != 2 {
		t.Errorf("group should hold seed and direct neighbor only, got %d members", len(groups[0].ImageIDs))
	}
	if groups[0].ImageIDs[0] != a.ID || groups[0].ImageIDs[1] != b.ID {
		t.Errorf("expected members [a b], got %v", groups[0].ImageIDs)
	}
}

func TestGroupDuplicatesMemberInOneGroupOnly(t *testing.T) {
	engine := phash.NewEngine(8)
	images := []models.Image{
		fingerprinted("0000000000000000"),
		fingerprinted("0000000000000001"),
		fingerprinted("0000000000000003"),
	}

	groups := groupDuplicates(engine, images, 64)

	seen := make(map[uuid.UUID]bool)
	for _, g := range groups {
		for _, id := range g.ImageIDs {
			if seen[id] {
				t.Errorf("image %s appears in more than one group", id)
			}
			seen[id] = true
		}
	}
}

func TestGroupDuplicatesIncompatibleWidthsNeverGroup(t *testing.T) {
	engine := phash.NewEngine(8)
	images := []models.Image{
		fingerprinted("0000000000000000"),
		fingerprinted("0000"), // shorter fingerprint from an older hash width
	}

	if groups := groupDuplicates(engine, images, 64); len(groups) != 0 {
		t.Errorf("incompatible fingerprint widths must never group, got %d groups", len(groups))
	}
}

func TestMergeEffectiveTagsHigherConfidenceWins(t *testing.T) {
	tags := []models.ImageTag{
		{Label: "dog", Source: models.TagSourceModel, Confidence: 0.7},
		{Label: "dog", Source: models.TagSourceUser, Confidence: 0.9},
		{Label: "cat", Source: models.TagSourceModel, Confidence: 0.6},
	}

	merged := MergeEffectiveTags(tags)

	if len(merged) != 2 {
		t.Fatalf("expected 2 effective tags, got %d", len(merged))
	}
	byLabel := make(map[string]services.EffectiveTag)
	for _, tag := range merged {
		byLabel[tag.Label] = tag
	}
	if dog := byLabel["dog"]; dog.Confidence != 0.9 || dog.Source != models.TagSourceUser {
		t.Errorf("expected user dog tag at 0.9 to win, got %+v", dog)
	}
	if cat := byLabel["cat"]; cat.Confidence != 0.6 {
		t.Errorf("expected cat at 0.6, got %+v", cat)
	}
}

func TestMergeEffectiveTagsCaseInsensitiveLabels(t *testing.T) {
	tags := []models.ImageTag{
		{Label: "Dog", Source: models.TagSourceModel, Confidence: 0.5},
		{Label: "dog", Source: models.TagSourceUser, Confidence: 0.8},
	}

	merged := MergeEffectiveTags(tags)
	if len(merged) != 1 {
		t.Fatalf("labels differing only in case should merge, got %d tags", len(merged))
	}
	if merged[0].Confidence != 0.8 {
		t.Errorf("expected winning confidence 0.8, got %f", merged[0].Confidence)
	}
}
