package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDirectMappings(t *testing.T) {
	tests := []struct {
		mime string
		want Kind
	}{
		{"application/pdf", KindPDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", KindDocument},
		{"application/vnd.google-apps.document", KindDocument},
		{"text/plain", KindDocument},
		{"application/rtf", KindDocument},
		{"text/csv", KindSpreadsheet},
		{"application/vnd.google-apps.spreadsheet", KindSpreadsheet},
		{"application/vnd.ms-powerpoint", KindPresentation},
		{"image/png", KindImage},
		{"video/mp4", KindVideo},
		{"audio/wav", KindAudio},
		{"application/zip", KindArchive},
		{"application/x-7z-compressed", KindArchive},
		{"text/html", KindCode},
		{"application/json", KindCode},
		{"application/vnd.google-apps.folder", KindFolder},
		{"application/vnd.google-apps.form", KindForm},
		{"application/vnd.google-apps.drawing", KindDrawing},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.mime))
		})
	}
}

func TestDetectPrefixFallbacks(t *testing.T) {
	assert.Equal(t, KindImage, Detect("image/x-exotic-raw"))
	assert.Equal(t, KindVideo, Detect("video/x-flv"))
	assert.Equal(t, KindAudio, Detect("audio/flac"))

	// Unmapped text subtypes are documents unless they smell like code.
	assert.Equal(t, KindDocument, Detect("text/markdown"))
	assert.Equal(t, KindCode, Detect("text/x-json-stream"))
}

func TestDetectNormalizesInput(t *testing.T) {
	assert.Equal(t, KindPDF, Detect("  Application/PDF "))
}

func TestDetectUnknownAndOther(t *testing.T) {
	assert.Equal(t, KindUnknown, Detect(""))
	assert.Equal(t, KindUnknown, Detect("   "))
	assert.Equal(t, KindOther, Detect("application/octet-stream"))
	assert.Equal(t, KindOther, Detect("model/gltf-binary"))
}
