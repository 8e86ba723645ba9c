// Package slate loads reference slate images and scores sampled frames
// against them by cosine similarity on a normalized luminance fingerprint.
package slate

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers the webp decoder with image.Decode
)

// Dimension is the fixed normalized extent N used by every fingerprint (N×N).
const Dimension = 32

// FingerprintLen is the length of the flattened row-major fingerprint vector.
const FingerprintLen = Dimension * Dimension

// Fingerprint is a fixed-size, resolution-normalized luminance vector with
// every element in [0,1]. It is the unit of comparison for both reference
// slates and sampled frames.
type Fingerprint [FingerprintLen]float64

// Decode decodes an encoded still image (PNG, JPEG, GIF, or WebP).
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

// DecodePNG decodes a single frame emitted by the ffmpeg decode pipeline,
// which is always PNG regardless of the slate image's original encoding.
func DecodePNG(raw []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(raw))
}

// ensure the stdlib jpeg/gif decoders register with image.Decode even though
// this file never calls them directly.
var (
	_ = jpeg.Decode
	_ = gif.Decode
)

// Compute converts img to luminance and resizes it (bilinear) to Dimension×
// Dimension, producing the row-major normalized vector described in the
// Slate Library's fingerprint algorithm.
func Compute(img image.Image) Fingerprint {
	gray := image.NewGray(image.Rect(0, 0, Dimension, Dimension))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Over, nil)

	var fp Fingerprint
	for y := 0; y < Dimension; y++ {
		for x := 0; x < Dimension; x++ {
			c := gray.GrayAt(x, y)
			fp[y*Dimension+x] = float64(c.Y) / 255.0
		}
	}
	return fp
}

// Score returns the cosine similarity between the zero-mean fingerprints a
// and b, clamped to [-1, 1]. Two fingerprints with zero variance (e.g. both
// flat fields) score 0, since no direction is comparable.
func Score(a, b Fingerprint) float64 {
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= FingerprintLen
	meanB /= FingerprintLen

	var dot, normA, normB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		dot += da * db
		normA += da * da
		normB += db * db
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
