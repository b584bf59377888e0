// Package objecturl issues revocable blob: addresses for locally held blobs,
// so a picked file can be loaded through the same path as a remote URL.
package objecturl

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

const scheme = "blob:"

// Registry maps live blob: addresses to their blobs.
type Registry struct {
	origin string

	mu      sync.RWMutex
	objects map[string]*source.Blob
	created int
	revoked int
	doubled int
}

// New returns a registry whose addresses are scoped to origin,
// e.g. "http://localhost:8888".
func New(origin string) *Registry {
	return &Registry{
		origin:  strings.TrimSuffix(origin, "/"),
		objects: make(map[string]*source.Blob),
	}
}

// Create allocates a fresh address bound to b.
func (r *Registry) Create(b *source.Blob) string {
	u := scheme + r.origin + "/" + uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[u] = b
	r.created++
	return u
}

// Resolve returns the blob behind a live address.
func (r *Registry) Resolve(u string) (*source.Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.objects[u]
	return b, ok
}

// Revoke releases an address. It returns false when the address was not
// live, which for an address this registry issued means a double release.
func (r *Registry) Revoke(u string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[u]; !ok {
		r.doubled++
		return false
	}
	delete(r.objects, u)
	r.revoked++
	return true
}

// Stats reports lifetime counters.
type Stats struct {
	Live           int `json:"live" yaml:"live"`
	Created        int `json:"created" yaml:"created"`
	Revoked        int `json:"revoked" yaml:"revoked"`
	DoubleReleased int `json:"double_released" yaml:"double_released"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Live:           len(r.objects),
		Created:        r.created,
		Revoked:        r.revoked,
		DoubleReleased: r.doubled,
	}
}

// Len returns the number of live addresses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// IsObjectURL reports whether u uses the blob: scheme.
func IsObjectURL(u string) bool {
	return len(u) >= len(scheme) && strings.EqualFold(u[:len(scheme)], scheme)
}
