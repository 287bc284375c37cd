// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package mtimecache memoizes derived values keyed by (logical key, path),
// invalidating automatically whenever the file's modification time changes.
package mtimecache

import (
	"os"
	"sync"
	"time"
)

type entry struct {
	value any
	mtime time.Time
	path  string
}

// Cache is a process-lifetime memoization table. One exclusive lock guards
// the whole table and is held around every operation, including compute;
// it is not designed for high-contention parallel access.
type Cache struct {
	mu   sync.Mutex
	data map[string]entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{data: make(map[string]entry)}
}

// Get returns the cached value for (key, path) if the file's current mtime
// still matches the stored one. Otherwise it invokes compute, stores the
// result alongside the observed mtime, and returns it. If path cannot be
// stat'd, compute still runs but its result is not cached.
func (c *Cache) Get(key, path string, compute func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, statErr := os.Stat(path)
	if statErr == nil {
		if e, ok := c.data[key]; ok && e.path == path && e.mtime.Equal(info.ModTime()) {
			return e.value
		}
	}

	value := compute()

	if statErr == nil {
		c.data[key] = entry{value: value, mtime: info.ModTime(), path: path}
	}

	return value
}

// Invalidate removes the cached entry for key, if any.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}
