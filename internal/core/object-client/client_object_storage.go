package objectclient

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/drivevectorai/backend/internal/config"
	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/models"
)

// S3Source exposes an S3 bucket as a file source: key prefixes act as
// folders, objects as files. MIME types are derived from key extensions
// since S3 rarely carries reliable content types.
type S3Source struct {
	client *s3.Client
	region string
	bucket string
}

var _ core.FileSource = (*S3Source)(nil)

func NewS3Source(ctx context.Context, cfg *cfg.Config) (core.FileSource, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Source{
		client: s3.NewFromConfig(awsCfg),
		region: cfg.AwsRegion,
		bucket: cfg.BucketName,
	}, nil
}

// ListChildren lists one page of the prefix's direct children. Grouping by
// delimiter turns sub-prefixes into folder items; the continuation token is
// passed through as the page token.
func (c *S3Source) ListChildren(ctx context.Context, folderID, pageToken string) ([]models.FileItem, string, error) {
	prefix := normalizePrefix(folderID)

	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}

	ctxList, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := c.client.ListObjectsV2(ctxList, in)
	if err != nil {
		return nil, "", fmt.Errorf("s3 list %q failed: %w", prefix, err)
	}

	var items []models.FileItem
	for _, cp := range out.CommonPrefixes {
		p := aws.ToString(cp.Prefix)
		items = append(items, models.FileItem{
			ID:       p,
			Name:     path.Base(strings.TrimSuffix(p, "/")),
			IsFolder: true,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix {
			// Zero-byte marker some tools create for the "folder" itself.
			continue
		}
		item := models.FileItem{
			ID:       key,
			Name:     path.Base(key),
			MimeType: mimeFromKey(key),
			Size:     aws.ToInt64(obj.Size),
			WebURL:   fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key),
		}
		if obj.LastModified != nil {
			item.ModifiedTime = *obj.LastModified
		}
		items = append(items, item)
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return items, next, nil
}

// GetContent downloads the object body using the transfer manager.
func (c *S3Source) GetContent(ctx context.Context, fileID string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	buf := manager.NewWriteAtBuffer(nil)
	downloader := manager.NewDownloader(c.client)
	_, err := downloader.Download(ctxGet, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %q failed: %w", fileID, err)
	}
	return buf.Bytes(), nil
}

// normalizePrefix maps folder ids to S3 prefixes: the bucket root is the
// empty prefix, everything else ends with a slash.
func normalizePrefix(folderID string) string {
	switch folderID {
	case "", "/", "root":
		return ""
	}
	if !strings.HasSuffix(folderID, "/") {
		return folderID + "/"
	}
	return folderID
}

func mimeFromKey(key string) string {
	mt := mime.TypeByExtension(path.Ext(key))
	if mt == "" {
		return "application/octet-stream"
	}
	// TypeByExtension may append parameters ("text/plain; charset=utf-8").
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
