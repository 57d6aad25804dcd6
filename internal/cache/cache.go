// Package cache stores rendered library views keyed by logical path.
package cache

import (
	"context"
	"fmt"
	"strings"
)

// ProfilePath is the logical path of the profile library view.
const ProfilePath = "/profile"

// ViewCache holds serialized views. Keys live under a logical path so one
// InvalidatePath call drops every entry below it.
//
// Every path also carries a generation that InvalidatePath bumps. Readers
// fetch it before loading from the store and build their key with it, so a
// view computed before an invalidation is written under a key nobody asks
// for again.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Generation(ctx context.Context, path string) (uint64, error)
	InvalidatePath(ctx context.Context, path string) error
}

// OwnerKey returns the cache key of owner's entry under path at generation.
func OwnerKey(path string, generation uint64, ownerID uint) string {
	return fmt.Sprintf("%s/v%d/%d", cleanPath(path), generation, ownerID)
}

func cleanPath(path string) string {
	return strings.TrimRight(path, "/")
}

func underPath(key, path string) bool {
	path = cleanPath(path)
	return key == path || strings.HasPrefix(key, path+"/")
}

// Nop is a ViewCache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)   { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error           { return nil }
func (Nop) Generation(context.Context, string) (uint64, error) { return 0, nil }
func (Nop) InvalidatePath(context.Context, string) error        { return nil }
