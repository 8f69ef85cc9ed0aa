package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

type Options struct {
	Endpoint   string
	Region     string
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Prefix     string
}

// Mirror uploads each response as <prefix>/<id>.json. Re-uploading the
// same response overwrites the same object.
type Mirror struct {
	client     *minio.Client
	bucketName string
	prefix     string
	log        *zap.Logger
}

// New buat koneksi MinIO
func New(ctx context.Context, opts Options, log *zap.Logger) (*Mirror, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, opts.BucketName)
	if err != nil {
		return nil, fmt.Errorf("bucket exists %q: %w", opts.BucketName, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.BucketName, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", opts.BucketName, err)
		}
		log.Info("bucket created", zap.String("bucket", opts.BucketName))
	}

	return &Mirror{client: cli, bucketName: opts.BucketName, prefix: opts.Prefix, log: log}, nil
}

func (m *Mirror) Name() string { return "minio" }

func (m *Mirror) Deliver(ctx context.Context, r *domain.Response) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	key := objectKey(m.prefix, r.ID)
	_, err = m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"participant-id": r.Participant.ParticipantID,
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	m.log.Debug("response mirrored", zap.String("bucket", m.bucketName), zap.String("key", key))
	return nil
}

// Check reports whether the bucket is reachable.
func (m *Mirror) Check(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %q not found", m.bucketName)
	}
	return nil
}

func objectKey(prefix string, id domain.ResponseID) string {
	prefix = strings.Trim(prefix, "/")
	name := string(id) + ".json"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
