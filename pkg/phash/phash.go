package phash

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

var (
	// ErrHashUnavailable means the fingerprint could not be computed for this
	// image. Callers should proceed without a fingerprint, never store a
	// placeholder value.
	ErrHashUnavailable = errors.New("perceptual hash unavailable")

	// ErrIncompatibleHash means two fingerprints cannot be compared because
	// they were produced with different hash widths.
	ErrIncompatibleHash = errors.New("incompatible hash widths")
)

// DefaultHashSize yields a 64-bit fingerprint (16 hex chars).
const DefaultHashSize = 8

// Engine computes and compares perceptual fingerprints. A fingerprint is a
// lowercase hex string of hashSize*hashSize bits derived from the image's
// frequency spectrum; visually similar images produce nearby fingerprints.
type Engine struct {
	hashSize int
}

func NewEngine(hashSize int) *Engine {
	if hashSize <= 0 {
		hashSize = DefaultHashSize
	}
	return &Engine{hashSize: hashSize}
}

// Bits returns the fingerprint width in bits.
func (e *Engine) Bits() int {
	return e.hashSize * e.hashSize
}

// Compute returns the fingerprint of img as a lowercase hex string of
// Bits()/4 characters. Failures return ErrHashUnavailable.
func (e *Engine) Compute(img image.Image) (string, error) {
	if img == nil {
		return "", ErrHashUnavailable
	}

	h, err := goimagehash.ExtPerceptionHash(img, e.hashSize, e.hashSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashUnavailable, err)
	}

	words := h.GetHash()
	buf := make([]byte, 0, len(words)*8)
	for _, w := range words {
		buf = append(buf,
			byte(w>>56), byte(w>>48), byte(w>>40), byte(w>>32),
			byte(w>>24), byte(w>>16), byte(w>>8), byte(w))
	}

	// Trim to exactly Bits()/8 bytes for hash sizes that do not fill the
	// final word.
	want := e.Bits() / 8
	if want > 0 && want <= len(buf) {
		buf = buf[:want]
	}

	return hex.EncodeToString(buf), nil
}

// Distance returns the Hamming distance between two hex fingerprints.
// Fingerprints of different widths are never coerced; comparing them
// returns ErrIncompatibleHash.
func (e *Engine) Distance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, ErrIncompatibleHash
	}

	ab, err := hex.DecodeString(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncompatibleHash, err)
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncompatibleHash, err)
	}

	dist := 0
	for i := range ab {
		dist += bits.OnesCount8(ab[i] ^ bb[i])
	}
	return dist, nil
}

// Similarity maps the Hamming distance between two fingerprints to [0,1]:
// 1 - distance/bits. Display-only; grouping decisions use raw distance.
func (e *Engine) Similarity(a, b string) (float64, error) {
	dist, err := e.Distance(a, b)
	if err != nil {
		return 0, err
	}
	totalBits := len(a) * 4
	if totalBits == 0 {
		return 1, nil
	}
	return 1 - float64(dist)/float64(totalBits), nil
}
