package storage

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
)

// Attachment kinds recognised by the board.
const (
	KindPDF   = "pdf"
	KindImage = "image"
)

// DetectKind derives the attachment kind from the MIME type and filename.
// Anything that is not identifiably a PDF is treated as an image.
func DetectKind(mimeType, filename string) string {
	if strings.Contains(strings.ToLower(mimeType), "pdf") || strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return KindPDF
	}
	return KindImage
}

// ObjectName produces a collision-resistant stored name preserving the
// original extension, mirroring the timestamp-plus-random scheme uploads
// have always used.
func ObjectName(originalName string) string {
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), randomSuffix(8))
	if ext != "" {
		return name + "." + ext
	}
	return name
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
