// Package drive adapts the Google Drive v3 API to the core.FileSource
// interface.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

const folderMimeType = "application/vnd.google-apps.folder"

// exportFormats maps drive-native MIME types to the format they are
// exported as. Native types without an entry cannot be downloaded at all.
var exportFormats = map[string]string{
	"application/vnd.google-apps.document": "text/plain",
}

type Source struct {
	svc *gdrive.Service
}

var _ core.FileSource = (*Source)(nil)

// NewSource builds a read-only Drive client. With an empty credentials path
// it falls back to application default credentials.
func NewSource(ctx context.Context, credentialsFile string) (*Source, error) {
	opts := []option.ClientOption{option.WithScopes(gdrive.DriveReadonlyScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Source{svc: svc}, nil
}

func (s *Source) ListChildren(ctx context.Context, folderID, pageToken string) ([]models.FileItem, string, error) {
	ctxList, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	call := s.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
		Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime, webViewLink)").
		PageSize(100).
		Context(ctxList)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	r, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("drive list %s: %w", folderID, err)
	}

	items := make([]models.FileItem, 0, len(r.Files))
	for _, f := range r.Files {
		item := models.FileItem{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
			WebURL:   f.WebViewLink,
			IsFolder: f.MimeType == folderMimeType,
		}
		if f.ModifiedTime != "" {
			if ts, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
				item.ModifiedTime = ts
			}
		}
		items = append(items, item)
	}
	return items, r.NextPageToken, nil
}

// GetContent downloads a file body. Drive-native documents are exported to
// plain text; native types without an export mapping are a permanent
// unsupported-format failure, not a retryable one.
func (s *Source) GetContent(ctx context.Context, fileID string) ([]byte, error) {
	meta, err := s.svc.Files.Get(fileID).Fields("mimeType").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive metadata %s: %w", fileID, err)
	}

	var resp *http.Response
	if strings.HasPrefix(meta.MimeType, "application/vnd.google-apps.") {
		exportMime, ok := exportFormats[meta.MimeType]
		if !ok {
			return nil, fmt.Errorf("drive-native type %q has no export format: %w",
				meta.MimeType, core.ErrUnsupportedFormat)
		}
		resp, err = s.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
	} else {
		resp, err = s.svc.Files.Get(fileID).Context(ctx).Download()
	}
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive read %s: %w", fileID, err)
	}
	return data, nil
}
