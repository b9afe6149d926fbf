package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	// ErrNoSuchKey is returned by every ObjectStore for unknown objects.
	ErrNoSuchKey = errors.New("no such key")
	// ErrTooLarge is returned by GetObject when an object exceeds the limit.
	ErrTooLarge = errors.New("object exceeds the size limit")
)

// Memory keeps objects in process. Demo mode and tests use it in place of a
// real bucket; presigned URLs point at the memory:// scheme.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ ObjectStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, digest string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: got %d, want %d", len(data), size)
	}
	sum := sha256.Sum256(data)
	if digest != "" && hex.EncodeToString(sum[:]) != digest {
		return errors.New("sha256 mismatch")
	}
	m.mu.Lock()
	m.objects[bucket+"/"+key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetObject(_ context.Context, bucket, key string, limit int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrNoSuchKey
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?op=get&ttl=%s", bucket, key, ttl), nil
}

func (m *Memory) PresignPut(_ context.Context, bucket, key string, size int64, ttl time.Duration) (string, error) {
	url := fmt.Sprintf("memory://%s/%s?op=put&ttl=%s", bucket, key, ttl)
	if size > 0 {
		url += fmt.Sprintf("&size=%d", size)
	}
	return url, nil
}
