// Package playback hands out revocable local URLs for generated audio.
//
// A blob URL has the form "blob:<uuid><ext>" and points at an object in a
// core.ObjectStore. Remote audio the service returned as a direct link is
// passed through unchanged and is never stored.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/google/uuid"
)

// BlobScheme prefixes every URL created by a Registry.
const BlobScheme = "blob:"

// Static errors.
var (
	ErrNoAudio    = errors.New("no audio to register")
	ErrUnknownURL = errors.New("unknown playback url")
)

// Registry maps blob URLs to stored audio. It is safe for concurrent use.
type Registry struct {
	store core.ObjectStore
	log   *logger.Logger

	mu    sync.Mutex
	blobs map[string]string
}

// NewRegistry creates a Registry on top of store.
func NewRegistry(store core.ObjectStore, log *logger.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log,
		blobs: make(map[string]string),
	}
}

// Create registers decoded audio and returns a URL to play it from.
func (r *Registry) Create(ctx context.Context, decoded tts.Audio) (string, error) {
	if decoded.Remote() {
		return decoded.URL, nil
	}

	if len(decoded.Data) == 0 {
		return "", ErrNoAudio
	}

	key := uuid.New().String() + decoded.Format.Extension()

	err := r.store.Upload(ctx, key, decoded.Data)
	if err != nil {
		return "", fmt.Errorf("failed to store playback audio: %w", err)
	}

	blobURL := BlobScheme + key

	r.mu.Lock()
	r.blobs[blobURL] = key
	r.mu.Unlock()

	if r.log != nil {
		r.log.Info("Registered %s (%s, %d bytes)", blobURL, decoded.MIMEType, len(decoded.Data))
	}

	return blobURL, nil
}

// Open returns the bytes behind a blob URL.
func (r *Registry) Open(ctx context.Context, blobURL string) ([]byte, error) {
	key, ok := r.lookup(blobURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownURL, blobURL)
	}

	data, err := r.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read playback audio: %w", err)
	}

	return data, nil
}

// Revoke releases a blob URL and deletes its audio. Unknown and remote URLs
// are ignored.
func (r *Registry) Revoke(ctx context.Context, blobURL string) error {
	if !IsBlob(blobURL) {
		return nil
	}

	r.mu.Lock()
	key, ok := r.blobs[blobURL]
	delete(r.blobs, blobURL)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	err := r.store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", blobURL, err)
	}

	return nil
}

// Len reports how many blob URLs are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.blobs)
}

// IsBlob reports whether url was produced by a Registry.
func IsBlob(url string) bool {
	return strings.HasPrefix(url, BlobScheme)
}

func (r *Registry) lookup(blobURL string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.blobs[blobURL]

	return key, ok
}
