package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage 基于MinIO的对象存储
// 对象键与本地存储的路径布局一致，形如 2026/08/31/<id>.txt
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// MinioConfig MinIO连接配置
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinioStorage 创建MinIO存储，桶不存在时自动创建
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &MinioStorage{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStorage) ensureBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Save 上传文件并返回元数据
func (s *MinioStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	objectKey := path.Join(
		time.Now().Format("2006/01/02"),
		id+path.Ext(filename),
	)

	// OCR页包体量不大，整体读入内存以获取大小
	content, err := io.ReadAll(reader)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to read file content: %w", err)
	}

	contentType := getMimeType(filename)
	_, err = s.client.PutObject(
		context.Background(),
		s.bucket,
		objectKey,
		bytes.NewReader(content),
		int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     int64(len(content)),
		MimeType: contentType,
		Path:     objectKey,
	}, nil
}

// Get 按ID读取对象内容
func (s *MinioStorage) Get(id string) (io.ReadCloser, error) {
	objectKey, err := s.findObjectByID(id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(context.Background(), s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Delete 按ID删除对象
func (s *MinioStorage) Delete(id string) error {
	objectKey, err := s.findObjectByID(id)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(context.Background(), s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List 列出桶内的所有文件
func (s *MinioStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	objects := s.client.ListObjects(context.Background(), s.bucket, minio.ListObjectsOptions{Recursive: true})
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}

		name := path.Base(object.Key)
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, path.Ext(name)),
			Name:     name,
			Size:     object.Size,
			MimeType: getMimeType(name),
			Path:     object.Key,
		})
	}
	return files, nil
}

// Exists 检查指定ID的对象是否存在
func (s *MinioStorage) Exists(id string) (bool, error) {
	_, err := s.findObjectByID(id)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// findObjectByID 扫描对象键找到ID对应的对象
// 对象键尾段去掉扩展名即ID，桶内文件数量有限，线性扫描可以接受
func (s *MinioStorage) findObjectByID(id string) (string, error) {
	objects := s.client.ListObjects(context.Background(), s.bucket, minio.ListObjectsOptions{Recursive: true})
	for object := range objects {
		if object.Err != nil {
			return "", fmt.Errorf("failed to list objects: %w", object.Err)
		}
		name := path.Base(object.Key)
		if strings.TrimSuffix(name, path.Ext(name)) == id {
			return object.Key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
}
