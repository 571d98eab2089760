// Package catalog answers whether a video exists and what it is called.
// Upload and storage of videos live elsewhere; the view counter only needs
// this narrow read-only contract at its boundary.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a video id is unknown.
var ErrNotFound = errors.New("video not found")

type Video struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Catalog interface {
	Lookup(ctx context.Context, id int64) (Video, error)
}

// StaticCatalog serves a fixed set of videos, typically from node
// configuration.
type StaticCatalog struct {
	mu     sync.RWMutex
	videos map[int64]Video
}

func NewStaticCatalog(videos ...Video) *StaticCatalog {
	c := &StaticCatalog{videos: make(map[int64]Video, len(videos))}
	for _, v := range videos {
		c.videos[v.ID] = v
	}
	return c
}

func (c *StaticCatalog) Lookup(ctx context.Context, id int64) (Video, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[id]
	if !ok {
		return Video{}, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	return v, nil
}

// Add registers or renames a video.
func (c *StaticCatalog) Add(v Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos[v.ID] = v
}

// List returns the known videos ordered by id.
func (c *StaticCatalog) List() []Video {
	c.mu.RLock()
	out := make([]Video, 0, len(c.videos))
	for _, v := range c.videos {
		out = append(out, v)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
