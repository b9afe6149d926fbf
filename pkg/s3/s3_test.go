package s3

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := PutBytes(ctx, m, "b", "reports/x.txt", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := m.GetObject(ctx, "b", "reports/x.txt", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if _, err := m.GetObject(ctx, "b", "missing", 0); !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("got %v, want ErrNoSuchKey", err)
	}
}

func TestGetObjectLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := PutBytes(ctx, m, "b", "k", []byte("12345")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, err := m.GetObject(ctx, "b", "k", 5); err != nil || string(got) != "12345" {
		t.Fatalf("got %q, %v, want the whole object at the limit", got, err)
	}
	if _, err := m.GetObject(ctx, "b", "k", 4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		limit   int64
		wantErr error
	}{
		{name: "no limit", data: "abcdef", limit: 0},
		{name: "under", data: "abc", limit: 4},
		{name: "exact", data: "abcd", limit: 4},
		{name: "over", data: "abcde", limit: 4, wantErr: ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLimited(strings.NewReader(tt.data), tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && string(got) != tt.data {
				t.Fatalf("got %q, want %q", got, tt.data)
			}
		})
	}
}

func TestMemoryRejectsBadDigest(t *testing.T) {
	m := NewMemory()
	err := m.PutObject(context.Background(), "b", "k", bytes.NewReader([]byte("abc")), 3, strings.Repeat("0", 64))
	if err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestMemoryPresign(t *testing.T) {
	m := NewMemory()
	url, err := m.PresignGet(context.Background(), "b", "k", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(url, "memory://b/k") {
		t.Fatalf("got %q", url)
	}
	put, err := m.PresignPut(context.Background(), "b", "k", 2048, time.Minute)
	if err != nil {
		t.Fatalf("presign put: %v", err)
	}
	if !strings.HasSuffix(put, "&size=2048") {
		t.Fatalf("got %q, want the size bound into the URL", put)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:8333"}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestEncodeSHA256(t *testing.T) {
	if _, err := encodeSHA256(""); err == nil {
		t.Fatalf("expected error for empty digest")
	}
	if _, err := encodeSHA256("zz"); err == nil {
		t.Fatalf("expected error for non-hex digest")
	}
}
