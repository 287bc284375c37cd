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
package reverseread

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLastNLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
		want    []string
	}{
		{"simple LF, trailing newline", "a\nb\nc\n", 3, []string{"c", "b", "a"}},
		{"no trailing newline", "a\nb\nc", 3, []string{"c", "b", "a"}},
		{"CRLF terminators", "a\r\nb\r\nc\r\n", 2, []string{"c", "b"}},
		{"fewer lines than requested", "only\n", 5, []string{"only"}},
		{"single line no newline", "lonely", 1, []string{"lonely"}},
		{"n caps the result", "1\n2\n3\n4\n5\n", 2, []string{"5", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.content)
			got := LastNLines(path, tt.n)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLastNLinesAcrossBlockBoundary(t *testing.T) {
	// Build a file larger than one block so the backward reader must join
	// multiple 8KiB blocks to assemble the requested lines.
	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		sb.WriteString(strings.Repeat("x", 10))
		sb.WriteByte('\n')
	}
	sb.WriteString("final-line")
	path := writeTemp(t, sb.String())

	got := LastNLines(path, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "final-line", got[0])
}

func TestLastLine(t *testing.T) {
	path := writeTemp(t, "first\nsecond\nthird\n")
	line, ok := LastLine(path)
	assert.True(t, ok)
	assert.Equal(t, "third", line)
}

func TestLastLineMissingFile(t *testing.T) {
	line, ok := LastLine("/nonexistent/path/does-not-exist.jsonl")
	assert.False(t, ok)
	assert.Equal(t, "", line)
}

func TestLastNLinesEmptyFile(t *testing.T) {
	path := writeTemp(t, "")
	assert.Nil(t, LastNLines(path, 5))
}

func TestLastNLinesDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, LastNLines(dir, 1))
}
