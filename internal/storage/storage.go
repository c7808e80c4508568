// Package storage keeps user avatars in an object store, keyed by the user's
// public id. MinIO and Google Cloud Storage backends are supported.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/identserv/identityd/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// AvatarStore wraps an ObjectStorage backend with avatar-keyed operations.
type AvatarStore struct {
	backend ObjectStorage
}

// NewAvatarStore constructs an AvatarStore over the provided backend.
func NewAvatarStore(backend ObjectStorage) *AvatarStore {
	return &AvatarStore{backend: backend}
}

// NewFromConfig builds an AvatarStore for the configured backend. An empty
// backend name disables avatar storage and returns nil.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*AvatarStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err := NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return NewAvatarStore(backend), nil
	case "gcs":
		backend, err := NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return NewAvatarStore(backend), nil
	default:
		return nil, errors.New("unknown storage backend: " + cfg.Backend)
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put stores the avatar for the given public id.
func (s *AvatarStore) Put(ctx context.Context, publicID string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, avatarKey(publicID), r, size, contentType)
}

// Get opens a reader for the avatar of the given public id.
func (s *AvatarStore) Get(ctx context.Context, publicID string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, avatarKey(publicID))
}

// Delete removes the avatar of the given public id.
func (s *AvatarStore) Delete(ctx context.Context, publicID string) error {
	return s.backend.Delete(ctx, avatarKey(publicID))
}

func avatarKey(publicID string) string {
	return "avatars/" + publicID
}
