package voices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/tts"
	gocache "github.com/patrickmn/go-cache"
)

const (
	taskListVoices = "list_voices"
	cacheKeyRemote = "remote-voices"
)

// ErrVoiceNotFound is returned by Find for ids in neither list.
var ErrVoiceNotFound = errors.New("voice not found")

// Lister fetches the voices uploaded to the inference service.
type Lister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// SyncRunner executes a synchronous task on the inference service.
type SyncRunner interface {
	RunSync(ctx context.Context, input, out any) error
}

// RemoteLister lists voices with the list_voices task.
type RemoteLister struct {
	runner SyncRunner
}

// NewRemoteLister creates a RemoteLister. *tts.HTTPClient satisfies runner.
func NewRemoteLister(runner SyncRunner) *RemoteLister {
	return &RemoteLister{runner: runner}
}

type listVoicesInput struct {
	Task string `json:"task"`
}

type remoteVoice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listVoicesResponse struct {
	Status string        `json:"status"`
	Output []remoteVoice `json:"output"`
}

// ListVoices returns the remote voices, all described as cloud voices.
func (l *RemoteLister) ListVoices(ctx context.Context) ([]Voice, error) {
	var resp listVoicesResponse

	err := l.runner.RunSync(ctx, listVoicesInput{Task: taskListVoices}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote voices: %w", err)
	}

	voices := make([]Voice, 0, len(resp.Output))

	for _, remote := range resp.Output {
		if remote.ID == "" {
			continue
		}

		name := remote.Name
		if name == "" {
			name = remote.ID
		}

		voices = append(voices, Voice{ID: remote.ID, DisplayName: name, Description: DescriptionCloud})
	}

	return voices, nil
}

// Catalog merges presets with a cached copy of the remote list. A failed
// fetch degrades to presets only.
type Catalog struct {
	presets []Voice
	lister  Lister
	cache   *gocache.Cache
	log     *logger.Logger
}

// NewCatalog creates a Catalog. A nil lister serves presets only.
func NewCatalog(presets []Voice, lister Lister, ttl time.Duration, log *logger.Logger) *Catalog {
	return &Catalog{
		presets: presets,
		lister:  lister,
		cache:   gocache.New(ttl, 2*ttl),
		log:     log,
	}
}

// NewCatalogFromClient wires a Catalog to the inference client.
func NewCatalogFromClient(presets []Voice, client *tts.HTTPClient, ttl time.Duration, log *logger.Logger) *Catalog {
	return NewCatalog(presets, NewRemoteLister(client), ttl, log)
}

// Presets returns a copy of the preset voices.
func (c *Catalog) Presets() []Voice {
	return append([]Voice(nil), c.presets...)
}

// List returns presets plus the remote voices.
func (c *Catalog) List(ctx context.Context) []Voice {
	if c.lister == nil {
		return c.Presets()
	}

	if cached, found := c.cache.Get(cacheKeyRemote); found {
		if remote, ok := cached.([]Voice); ok {
			return Merge(c.presets, remote)
		}
	}

	remote, err := c.lister.ListVoices(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Warn("Could not load cloud voices, using presets: %v", err)
		}

		return c.Presets()
	}

	c.cache.SetDefault(cacheKeyRemote, remote)

	return Merge(c.presets, remote)
}

// Refresh drops the cached remote list so the next List fetches again.
func (c *Catalog) Refresh() {
	c.cache.Delete(cacheKeyRemote)
}

// Find looks up a voice by id.
func (c *Catalog) Find(ctx context.Context, id string) (Voice, error) {
	for _, voice := range c.List(ctx) {
		if voice.ID == id {
			return voice, nil
		}
	}

	return Voice{}, fmt.Errorf("%w: %q", ErrVoiceNotFound, id)
}
