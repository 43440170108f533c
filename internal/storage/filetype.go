package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/aledz7/df-graficas-sub017/internal/models"
)

// sniffLen is how many leading bytes DetectContentType considers.
const sniffLen = 512

// DetectContentType sniffs the upload's leading bytes. Generic results
// (octet-stream, zip containers, plain text) are refined from the file
// extension so office documents and CSVs keep their real types.
func DetectContentType(fileName string, header []byte) string {
	if len(header) > sniffLen {
		header = header[:sniffLen]
	}
	if t, err := DetectImageType(header); err == nil {
		return t
	}
	sniffed := http.DetectContentType(header)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}

	byExt := typeByExtension(fileName)

	switch sniffed {
	case "application/octet-stream":
		if byExt != "" {
			return byExt
		}
	case "application/zip":
		// docx/xlsx are zip containers.
		if strings.HasPrefix(byExt, "application/vnd.openxmlformats") {
			return byExt
		}
	case "text/plain":
		if byExt == "text/csv" {
			return byExt
		}
	}
	return sniffed
}

// extensionTypes covers extensions the platform mime table may lack.
var extensionTypes = map[string]string{
	".csv":  "text/csv",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

func typeByExtension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if i := strings.Index(t, ";"); i >= 0 {
		t = t[:i]
	}
	return t
}

// CategoryOf maps a MIME type onto the attachment category shown by clients.
func CategoryOf(contentType string) models.AttachmentCategory {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.CategoryImage
	case strings.HasPrefix(contentType, "audio/"), strings.HasPrefix(contentType, "video/"):
		return models.CategoryMedia
	case contentType == "application/zip",
		contentType == "application/x-gzip",
		contentType == "application/x-7z-compressed",
		contentType == "application/x-rar-compressed":
		return models.CategoryArchive
	default:
		return models.CategoryDocument
	}
}

// SanitizeFileName keeps the base name and strips characters that break
// Content-Disposition headers.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '/' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}
