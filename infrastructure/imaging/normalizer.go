package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/bep/imagemeta"
	dimaging "github.com/disintegration/imaging"
)

// ErrInvalidImage means the bytes are not a decodable image. It is
// non-retryable: the same bytes will never decode on a later attempt.
var ErrInvalidImage = errors.New("invalid image data")

// exifAllowList limits stored EXIF to fields useful for display and search.
var exifAllowList = map[string]bool{
	"Make":             true,
	"Model":            true,
	"Orientation":      true,
	"DateTime":         true,
	"DateTimeOriginal": true,
	"ExposureTime":     true,
	"FNumber":          true,
	"ISOSpeedRatings":  true,
}

// Metadata describes a normalized image.
type Metadata struct {
	Width     int
	Height    int
	Format    string // jpeg, png, gif, webp
	ColorMode string // always RGB after canonicalization
	SizeBytes int64
	Exif      map[string]string
}

// Result is the output of one normalization pass.
type Result struct {
	Metadata  Metadata
	Image     image.Image // canonicalized pixels (alpha composited onto white)
	Thumbnail []byte      // JPEG, empty only if encoding failed
}

// Normalizer validates uploads and produces the canonical pixel form the
// rest of the pipeline works on.
type Normalizer struct {
	thumbnailSize    int
	thumbnailQuality int
}

func NewNormalizer(thumbnailSize, thumbnailQuality int) *Normalizer {
	if thumbnailSize <= 0 {
		thumbnailSize = 300
	}
	if thumbnailQuality <= 0 || thumbnailQuality > 100 {
		thumbnailQuality = 85
	}
	return &Normalizer{
		thumbnailSize:    thumbnailSize,
		thumbnailQuality: thumbnailQuality,
	}
}

// Process verifies, decodes, and canonicalizes raw image bytes. Structural
// and pixel-level decode failures both return ErrInvalidImage.
func (n *Normalizer) Process(data []byte) (*Result, error) {
	// Structural verify before committing to a full pixel decode
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img = flattenAlpha(img)

	bounds := img.Bounds()
	meta := Metadata{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Format:    format,
		ColorMode: "RGB",
		SizeBytes: int64(len(data)),
		Exif:      extractExif(data, format),
	}

	thumb, err := n.encodeThumbnail(img)
	if err != nil {
		// Thumbnail failure degrades the record, it does not invalidate it
		thumb = nil
	}

	return &Result{
		Metadata:  meta,
		Image:     img,
		Thumbnail: thumb,
	}, nil
}

// flattenAlpha composites transparent images onto a white background so
// downstream fingerprinting and thumbnails see the same pixels a viewer
// would on a white page.
func flattenAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	background := dimaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return dimaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

func (n *Normalizer) encodeThumbnail(img image.Image) ([]byte, error) {
	// Fit preserves aspect ratio and never upscales
	thumb := dimaging.Fit(img, n.thumbnailSize, n.thumbnailSize, dimaging.Lanczos)

	var buf bytes.Buffer
	if err := dimaging.Encode(&buf, thumb, dimaging.JPEG, dimaging.JPEGQuality(n.thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// metadataFormat maps a decoded format to imagemeta's. imagemeta does not
// detect the format itself and has no gif support.
func metadataFormat(format string) (imagemeta.ImageFormat, bool) {
	switch format {
	case "jpeg":
		return imagemeta.JPEG, true
	case "png":
		return imagemeta.PNG, true
	case "webp":
		return imagemeta.WebP, true
	default:
		return 0, false
	}
}

// extractExif pulls the allow-listed EXIF fields. Best-effort: metadata
// parse failures and unsupported formats yield an empty map, never an error.
func extractExif(data []byte, format string) map[string]string {
	imgFormat, ok := metadataFormat(format)
	if !ok {
		return map[string]string{}
	}

	exif := make(map[string]string)

	err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: imgFormat,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return exifAllowList[ti.Tag]
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if ti.Value != nil {
				exif[ti.Tag] = fmt.Sprint(ti.Value)
			}
			return nil
		},
	})
	if err != nil {
		return map[string]string{}
	}

	return exif
}
