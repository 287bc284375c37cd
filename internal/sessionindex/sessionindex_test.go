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
package sessionindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc-123_DEF", "abc-123_DEF"},
		{"../../etc/passwd", "etcpasswd"},
		{"sess/with/slashes", "sesswithslashes"},
		{"", ""},
		{"a b c", "abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeID(tt.in))
	}
}

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestList(t *testing.T) {
	root := t.TempDir()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	writeFile(t, filepath.Join(root, "proj-one", "sess-a.jsonl"), older)
	writeFile(t, filepath.Join(root, "proj-one", "sess-b.jsonl"), newer)
	writeFile(t, filepath.Join(root, "proj-one", "sess-b.jsonl.save"), newer)
	writeFile(t, filepath.Join(root, "..traversal", "sess-c.jsonl"), newer)

	refs, err := List(root)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "sess-b", refs[0].SessionID)
	assert.Equal(t, "sess-a", refs[1].SessionID)
	assert.Equal(t, "proj-one", refs[0].ProjectDir)
}

func TestList_UnreadableRootReturnsEmptyNotError(t *testing.T) {
	refs, err := List(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err)
	assert.Nil(t, refs)
}
