package storage

import (
	"bytes"
	"io"
	"strings"

	"challengetracker/models"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

// Sniff detects the MIME type from the head of r. The returned reader
// replays the consumed bytes.
func Sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]
	mime := mimetype.Detect(head).String()
	return baseType(mime), io.MultiReader(bytes.NewReader(head), r), nil
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}

func isDocument(mime string) bool {
	switch mime {
	case "application/pdf", "application/msword", "application/rtf",
		"application/vnd.ms-excel", "application/vnd.ms-powerpoint",
		"text/plain", "text/csv", "text/rtf":
		return true
	}
	return strings.HasPrefix(mime, "application/vnd.openxmlformats-officedocument.") ||
		strings.HasPrefix(mime, "application/vnd.oasis.opendocument.")
}

// Classify maps a MIME type to the coarse media kind stored with a
// submission file.
func Classify(mime string) models.MediaKind {
	mime = baseType(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaAudio
	case isDocument(mime):
		return models.MediaDocument
	}
	return models.MediaOther
}

func IsImage(mime string) bool {
	return Classify(mime) == models.MediaImage
}
