package source

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object streams a model from an S3-compatible bucket.
type Object struct {
	client *minio.Client
	bucket string
	key    string
	format string
}

func NewObject(cfg config.MinIOConfig, format string) (*Object, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client for %s: %w", cfg.Endpoint, err)
	}
	return &Object{client: client, bucket: cfg.Bucket, key: cfg.Object, format: format}, nil
}

func (o *Object) Name() string { return fmt.Sprintf("s3://%s/%s", o.bucket, o.key) }

func (o *Object) Load(ctx context.Context) ([]vocab.Pair, error) {
	if _, err := o.client.StatObject(ctx, o.bucket, o.key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("model object %s does not exist", o.Name())
		}
		return nil, fmt.Errorf("stat %s: %w", o.Name(), err)
	}
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", o.Name(), err)
	}
	defer obj.Close()
	pairs, err := Decode(obj, o.format)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", o.Name(), err)
	}
	return pairs, nil
}
