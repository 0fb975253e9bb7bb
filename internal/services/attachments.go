package services

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Handles mime types that carry parameters, e.g. audio/webm;codecs=opus.
var dataURLPattern = regexp.MustCompile(`^data:([A-Za-z0-9.+/;=\-\w]+);base64,(.+)$`)

// parseDataURL decodes a base64 data URL into raw bytes, the base content
// type (codec parameters stripped) and a generated object filename.
func parseDataURL(raw string) (data []byte, contentType string, filename string, err error) {
	matches := dataURLPattern.FindStringSubmatch(raw)
	if len(matches) != 3 {
		return nil, "", "", fmt.Errorf("invalid base64 data url")
	}

	data, err = base64.StdEncoding.DecodeString(matches[2])
	if err != nil {
		return nil, "", "", fmt.Errorf("decode base64 payload: %w", err)
	}

	contentType = strings.SplitN(matches[1], ";", 2)[0]
	parts := strings.SplitN(contentType, "/", 2)
	ext := "bin"
	if len(parts) == 2 && parts[1] != "" {
		ext = parts[1]
	}

	filename = uuid.NewString() + "." + ext
	return data, contentType, filename, nil
}
