package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"VideoCreator-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// OSS mirrors provider artifacts into MinIO and serves local copies for
// finalization. Implements the Artifacts interface.
type OSS struct {
	Client *minio.Client
	Bucket string
	HTTP   *http.Client
}

// InitMinIO connects to the configured MinIO endpoint. Called from main.
func InitMinIO() *OSS {
	cfg := config.AppConfig.MinIO
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("MinIO init failed: %v", err)
	}
	log.Println("MinIO connected")
	return &OSS{
		Client: client,
		Bucket: cfg.Bucket,
		HTTP:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *OSS) ensureBucket(ctx context.Context) error {
	exists, err := o.Client.BucketExists(ctx, o.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket failed: %w", err)
	}
	if !exists {
		if err := o.Client.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket failed: %w", err)
		}
		log.Printf("bucket %q created", o.Bucket)
	}
	return nil
}

// Mirror downloads a provider-hosted artifact and re-uploads it into our
// bucket, returning a presigned URL. Provider URLs expire quickly; ours
// are the durable reference stored on segments and projects.
func (o *OSS) Mirror(ctx context.Context, srcURL, objectName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request failed: %w", err)
	}
	resp, err := o.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return o.upload(ctx, resp.Body, objectName, resp.ContentLength)
}

// UploadFile uploads a local file and returns a presigned URL.
func (o *OSS) UploadFile(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s failed: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return o.upload(ctx, f, objectName, info.Size())
}

func (o *OSS) upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error) {
	if err := o.ensureBucket(ctx); err != nil {
		return "", err
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".mp4":
		contentType = "video/mp4"
	case ".mp3":
		contentType = "audio/mpeg"
	case ".wav":
		contentType = "audio/wav"
	}

	_, err := o.Client.PutObject(ctx, o.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload to MinIO failed: %w", err)
	}

	expiry := time.Hour * 72
	presignedURL, err := o.Client.PresignedGetObject(ctx, o.Bucket, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign URL failed: %w", err)
	}
	log.Printf("uploaded %s", objectName)
	return presignedURL.String(), nil
}

// FetchToFile downloads any URL (ours or the provider's) to a local path.
// Used by finalize, which needs the segment videos on disk for ffmpeg.
func (o *OSS) FetchToFile(ctx context.Context, srcURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("create download request failed: %w", err)
	}
	resp, err := o.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}
