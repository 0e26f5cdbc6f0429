// Package store keeps uploaded images in memory, deduplicated by content hash.
//
// An ImageStore belongs to exactly one session and is not safe for concurrent
// use; hosts that serve several users create one store per session.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/vision-amp/internal/utils"
	"github.com/menta2k/vision-amp/pkg/types"
)

// ImageStore is a content-addressed collection of uploaded images
type ImageStore struct {
	entries map[string]*types.StoredImage
	order   []string
	now     func() time.Time
	newID   func() string
}

// New creates an empty store
func New() *ImageStore {
	return &ImageStore{
		entries: make(map[string]*types.StoredImage),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Hash returns the dedup key for a payload
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data under its content hash. When the hash is already present the
// existing entry is returned with isNew=false and nothing is validated or copied.
func (s *ImageStore) Put(data []byte, name string) (types.StoredImage, bool, error) {
	hash := Hash(data)
	if existing, ok := s.entries[hash]; ok {
		return *existing, false, nil
	}

	mime, err := utils.MimeTypeFromName(name)
	if err != nil {
		return types.StoredImage{}, false, err
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	entry := &types.StoredImage{
		ID:         s.newID(),
		Hash:       hash,
		Name:       name,
		MimeType:   mime,
		Size:       len(payload),
		UploadedAt: s.now(),
		Data:       payload,
	}
	s.entries[hash] = entry
	s.order = append(s.order, hash)
	return *entry, true, nil
}

// Get returns the entry stored under hash
func (s *ImageStore) Get(hash string) (types.StoredImage, error) {
	entry, ok := s.entries[hash]
	if !ok {
		return types.StoredImage{}, types.ErrNotFound
	}
	return *entry, nil
}

// Contains reports whether hash is stored
func (s *ImageStore) Contains(hash string) bool {
	_, ok := s.entries[hash]
	return ok
}

// Delete removes the entry stored under hash. Unknown hashes are ignored.
func (s *ImageStore) Delete(hash string) {
	if _, ok := s.entries[hash]; !ok {
		return
	}
	delete(s.entries, hash)
	for i, h := range s.order {
		if h == hash {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List returns all entries in insertion order
func (s *ImageStore) List() []types.StoredImage {
	out := make([]types.StoredImage, 0, len(s.order))
	for _, hash := range s.order {
		out = append(out, *s.entries[hash])
	}
	return out
}

// Len returns the number of stored images
func (s *ImageStore) Len() int {
	return len(s.order)
}
