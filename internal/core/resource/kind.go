// Package resource classifies drive MIME types into coarse resource kinds
// used for filtering, stats and UI grouping.
package resource

import "strings"

// Kind is a coarse resource category derived from a MIME type.
type Kind string

const (
	KindImage        Kind = "image"
	KindPDF          Kind = "pdf"
	KindDocument     Kind = "document"
	KindSpreadsheet  Kind = "spreadsheet"
	KindPresentation Kind = "presentation"
	KindVideo        Kind = "video"
	KindAudio        Kind = "audio"
	KindArchive      Kind = "archive"
	KindCode         Kind = "code"
	KindFolder       Kind = "folder"
	KindForm         Kind = "form"
	KindDrawing      Kind = "drawing"
	KindOther        Kind = "other"
	KindUnknown      Kind = "unknown"
)

func (k Kind) String() string { return string(k) }

var mimeKinds = map[string]Kind{
	// Images
	"image/jpeg":    KindImage,
	"image/jpg":     KindImage,
	"image/png":     KindImage,
	"image/gif":     KindImage,
	"image/bmp":     KindImage,
	"image/svg+xml": KindImage,
	"image/webp":    KindImage,
	"image/tiff":    KindImage,

	// PDFs
	"application/pdf": KindPDF,

	// Documents
	"application/vnd.google-apps.document":                                    KindDocument,
	"application/msword":                                                      KindDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDocument,
	"application/vnd.oasis.opendocument.text":                                 KindDocument,
	"text/plain":                                                              KindDocument,
	"text/rtf":                                                                KindDocument,
	"application/rtf":                                                         KindDocument,

	// Spreadsheets
	"application/vnd.google-apps.spreadsheet":                           KindSpreadsheet,
	"application/vnd.ms-excel":                                          KindSpreadsheet,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindSpreadsheet,
	"application/vnd.oasis.opendocument.spreadsheet":                    KindSpreadsheet,
	"text/csv":                                                          KindSpreadsheet,

	// Presentations
	"application/vnd.google-apps.presentation":                                  KindPresentation,
	"application/vnd.ms-powerpoint":                                             KindPresentation,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": KindPresentation,
	"application/vnd.oasis.opendocument.presentation":                           KindPresentation,

	// Videos
	"video/mp4":       KindVideo,
	"video/mpeg":      KindVideo,
	"video/quicktime": KindVideo,
	"video/x-msvideo": KindVideo,
	"video/x-ms-wmv":  KindVideo,
	"video/webm":      KindVideo,

	// Audio
	"audio/mpeg": KindAudio,
	"audio/mp3":  KindAudio,
	"audio/wav":  KindAudio,
	"audio/ogg":  KindAudio,
	"audio/webm": KindAudio,

	// Archives
	"application/zip":              KindArchive,
	"application/x-rar-compressed": KindArchive,
	"application/x-tar":            KindArchive,
	"application/gzip":             KindArchive,
	"application/x-7z-compressed":  KindArchive,

	// Code files
	"text/html":        KindCode,
	"text/css":         KindCode,
	"text/javascript":  KindCode,
	"application/json": KindCode,
	"application/xml":  KindCode,
	"text/xml":         KindCode,

	// Drive-native container types
	"application/vnd.google-apps.folder":  KindFolder,
	"application/vnd.google-apps.form":    KindForm,
	"application/vnd.google-apps.drawing": KindDrawing,
}

var codeHints = []string{"html", "css", "javascript", "json", "xml"}

// Detect maps a MIME type to its Kind. Unmapped types fall back to their
// top-level MIME family; text/* without a code hint counts as a document.
// An empty MIME type is KindUnknown.
func Detect(mimeType string) Kind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "" {
		return KindUnknown
	}
	if k, ok := mimeKinds[mt]; ok {
		return k
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "text/"):
		for _, hint := range codeHints {
			if strings.Contains(mt, hint) {
				return KindCode
			}
		}
		return KindDocument
	}
	return KindOther
}
