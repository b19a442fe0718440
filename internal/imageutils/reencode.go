package imageutils

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/hunterwarburton/medsage/internal/logger"
)

// DefaultJPEGQuality is the quality used when re-encoding uploads for the vision model.
const DefaultJPEGQuality = 90

// ReEncodeJPEG decodes raw image bytes and re-encodes them as JPEG at the
// given quality. The returned format is the decoder that recognised the input.
func ReEncodeJPEG(raw []byte, quality int) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, format, fmt.Errorf("failed to encode image to JPEG: %w", err)
	}
	logger.VisionDebug("Re-encoded %s image (%d bytes) to JPEG (%d bytes, quality %d)", format, len(raw), buf.Len(), quality)
	return buf.Bytes(), format, nil
}

// NormalizeForVision returns raw re-encoded as JPEG, or raw unchanged when it
// cannot be decoded. Undecodable payloads are passed through so the model can
// still try them.
func NormalizeForVision(raw []byte, quality int) []byte {
	out, format, err := ReEncodeJPEG(raw, quality)
	if err != nil {
		logger.VisionWarn("Skipping re-encode (format %q): %v", format, err)
		return raw
	}
	return out
}
