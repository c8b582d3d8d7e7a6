package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DocumentStorage 文档存储接口，保存上传的原始文件
type DocumentStorage interface {
	Save(ctx context.Context, filename string, reader io.Reader, size int64) error
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
	Delete(ctx context.Context, filename string) error
	Exists(ctx context.Context, filename string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Ready() bool
}

// LocalStorage 本地磁盘存储实现
type LocalStorage struct {
	basePath string
}

// NewLocalStorage 创建本地文件存储
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./data/documents"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// sanitize 文件名仅保留basename，避免路径穿越
func (s *LocalStorage) sanitize(filename string) string {
	return filepath.Base(strings.TrimSpace(filename))
}

func (s *LocalStorage) Save(_ context.Context, filename string, reader io.Reader, _ int64) error {
	name := s.sanitize(filename)
	if name == "" || name == "." {
		return fmt.Errorf("invalid filename: %q", filename)
	}

	target := filepath.Join(s.basePath, name)
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.basePath, s.sanitize(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, filename string) error {
	err := os.Remove(filepath.Join(s.basePath, s.sanitize(filename)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Exists(_ context.Context, filename string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.basePath, s.sanitize(filename)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalStorage) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

func (s *LocalStorage) Ready() bool {
	info, err := os.Stat(s.basePath)
	return err == nil && info.IsDir()
}
