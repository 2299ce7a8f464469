// Package cache is the cross-run key/value store behind the descrambling caches.
//
// Entries live in namespaces (one per cache kind) and carry a format tag. A
// reader states the tag it understands; an entry written under any other tag
// is reported as absent so the caller recomputes and overwrites it. Writes are
// last-writer-wins per key.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ytget/descramble/errs"
	"github.com/ytget/descramble/internal/logger"
)

// Namespaces used by the descrambler.
const (
	// NamespaceSigFuncs holds permutation specs keyed by player and signature shape.
	NamespaceSigFuncs = "sigfuncs"
	// NamespaceJSFuncs holds extracted function snippets keyed by player and transform.
	NamespaceJSFuncs = "jsfuncs"
	// NamespaceTimestamp holds the per-player signature timestamp.
	NamespaceTimestamp = "sts"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Entry is a persisted record.
type Entry struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	FormatTag string          `json:"format"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Backend is a raw storage engine. Backends do not interpret format tags.
type Backend interface {
	Get(namespace, key string) (Entry, bool, error)
	Put(e Entry) error
	Delete(namespace, key string) error
	Clear(namespace string) error
	Close() error
}

// Cache wraps a Backend with format-tag validation and JSON payloads.
type Cache struct {
	backend Backend
	log     *logger.ComponentLogger
}

// New returns a Cache over backend. A nil log uses the global logger.
func New(backend Backend, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Cache{backend: backend, log: log.WithComponent(logger.ComponentCache)}
}

// ValidateName rejects namespaces and keys that cannot be used as file names.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid cache name %q", name)
	}
	return nil
}

// Load decodes the entry at (namespace, key) into v. It reports false when the
// entry is missing, unreadable, or was written under a different format tag.
func (c *Cache) Load(namespace, key, formatTag string, v any) bool {
	if c == nil || c.backend == nil {
		return false
	}
	e, ok, err := c.backend.Get(namespace, key)
	if err != nil {
		c.log.Debug("cache read failed", logger.Fields{"namespace": namespace, "key": key, "error": err.Error()})
		return false
	}
	if !ok {
		return false
	}
	if err := checkFormat(e, formatTag); err != nil {
		c.log.Debug("ignoring stale cache entry", logger.Fields{"namespace": namespace, "key": key, "error": err.Error()})
		return false
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		c.log.Debug("cache payload undecodable", logger.Fields{"namespace": namespace, "key": key, "error": err.Error()})
		return false
	}
	return true
}

// Store writes v under (namespace, key) tagged with formatTag.
func (c *Cache) Store(namespace, key, formatTag string, v any) error {
	if c == nil || c.backend == nil {
		return nil
	}
	if err := ValidateName(namespace); err != nil {
		return err
	}
	if err := ValidateName(key); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	return c.backend.Put(Entry{
		Namespace: namespace,
		Key:       key,
		FormatTag: formatTag,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	})
}

// Remove deletes one entry. Removing a missing entry is not an error.
func (c *Cache) Remove(namespace, key string) error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Delete(namespace, key)
}

// Clear deletes every entry in namespace.
func (c *Cache) Clear(namespace string) error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Clear(namespace)
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func checkFormat(e Entry, want string) error {
	if e.FormatTag != want {
		return fmt.Errorf("%w: have %q, want %q", errs.ErrCacheFormat, e.FormatTag, want)
	}
	return nil
}

// IsFormatError reports whether err came from a format tag mismatch.
func IsFormatError(err error) bool {
	return errors.Is(err, errs.ErrCacheFormat)
}
