// Пакет storage — клиент S3-совместимого объектного хранилища.
// Две операции: выдача presigned PUT URL с фиксацией content-length
// и HEAD-проба метаданных загруженного объекта.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/atshelchin/snapshare.link/internal/config"
)

// ErrObjectMissing — объект отсутствует в хранилище.
var ErrObjectMissing = errors.New("объект отсутствует в хранилище")

// defaultContentType — тип по умолчанию, если хранилище его не сообщило.
const defaultContentType = "application/octet-stream"

// ObjectInfo — метаданные объекта из HEAD-пробы.
type ObjectInfo struct {
	// Size — фактический размер объекта в байтах
	Size int64
	// ContentType — MIME-тип, определённый хранилищем
	ContentType string
}

// ObjectStorage — интерфейс объектного хранилища.
// Выделен для подмены фейком в тестах сервисного слоя.
type ObjectStorage interface {
	// PresignPut выдаёт подписанный PUT URL для записи ровно size байт
	// под ключом key. Хранилище отклонит загрузку другого размера —
	// content-length входит в подпись.
	PresignPut(ctx context.Context, key string, size int64, ttl time.Duration) (string, error)
	// Probe выполняет HEAD-запрос метаданных объекта.
	// Возвращает ErrObjectMissing, если объект не найден.
	Probe(ctx context.Context, key string) (*ObjectInfo, error)
}

// Client — реализация ObjectStorage поверх aws-sdk-go-v2.
type Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	logger    *slog.Logger
}

// New создаёт клиент объектного хранилища.
// При непустом cfg.S3Endpoint используется кастомный endpoint
// (R2, MinIO и другие S3-совместимые хранилища) с path-style адресацией.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки AWS-конфигурации: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		logger:    logger.With(slog.String("component", "storage")),
	}, nil
}

// PresignPut выдаёт presigned PUT URL со сроком действия ttl.
// ContentLength входит в подписанные заголовки: клиент не сможет
// загрузить больше (или меньше) заявленного размера.
func (c *Client) PresignPut(ctx context.Context, key string, size int64, ttl time.Duration) (string, error) {
	presigned, err := c.presigner.PresignPutObject(ctx,
		&s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			ContentLength: aws.Int64(size),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("ошибка выдачи presigned URL: %w", err)
	}
	return presigned.URL, nil
}

// Probe выполняет HEAD-запрос метаданных объекта по ключу.
// Метаданные хранилища — единственный авторитетный источник
// размера и типа файла; заявленным клиентом значениям не доверяем.
func (c *Client) Probe(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchKey":
				return nil, ErrObjectMissing
			}
		}
		return nil, fmt.Errorf("ошибка HEAD-пробы объекта: %w", err)
	}

	info := &ObjectInfo{ContentType: defaultContentType}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil && *out.ContentType != "" {
		info.ContentType = *out.ContentType
	}
	return info, nil
}
