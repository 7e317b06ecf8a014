package core

import (
	"fmt"
	"strings"
)

// ValidateUpload rejects uploads before any bytes are decoded. size is the
// received file size in bytes and contentType the part's declared media type.
func ValidateUpload(size int64, contentType string, maxBytes int64) error {
	if size > maxBytes {
		return fmt.Errorf("%w: file is %d bytes, limit is %d bytes", ErrPayloadTooLarge, size, maxBytes)
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: got %q, expected an image/* content type", ErrUnsupportedMediaType, contentType)
	}

	return nil
}
