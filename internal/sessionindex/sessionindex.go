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
// Package sessionindex enumerates transcripts under the agent runtime's
// per-user root, sanitizing every identifier before it touches the
// filesystem.
package sessionindex

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomcat/internal/log"
)

// idPattern is the only character class a session id or project directory
// name may contain. Anything else is either rejected (project directories
// in List) or stripped (SanitizeID).
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// candidateRoots lists, in probe order, the directories that might be the
// agent's per-user session root. The first candidate containing at least
// one subdirectory with a .jsonl file wins; Root falls back to
// ~/.claude/projects when none does.
func candidateRoots(home string) []string {
	return []string{
		filepath.Join(home, ".claude", "projects"),
		filepath.Join(home, ".config", "claude", "projects"),
	}
}

// Root resolves the session root directory, probing the v2/XDG candidate
// list before falling back to the conventional ~/.claude/projects.
func Root() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".claude", "projects")
	}
	for _, candidate := range candidateRoots(home) {
		if hasAnyTranscript(candidate) {
			return candidate
		}
	}
	return filepath.Join(home, ".claude", "projects")
}

func hasAnyTranscript(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range sub {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
				return true
			}
		}
	}
	return false
}

// SessionRef identifies one discovered transcript on disk.
type SessionRef struct {
	SessionID  string
	ProjectDir string
	Path       string
	ModTime    time.Time
}

// SanitizeID strips every character outside [A-Za-z0-9_-] from s. Callers
// MUST sanitize before joining any caller-supplied id into a filesystem
// path; this is the only function in the package that accepts a raw,
// unvalidated string.
func SanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// List enumerates every transcript under root, newest first. Project
// directory entries whose name fails the [A-Za-z0-9_-]+ filter are skipped
// entirely (never partially sanitized and looked up) to prevent path
// traversal; a non-listable root yields an empty, non-error result.
func List(root string) ([]SessionRef, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Debug("sessionindex: root not listable", zap.String("root", root), zap.Error(err))
		return nil, nil
	}

	var refs []SessionRef
	for _, e := range entries {
		if !e.IsDir() || !idPattern.MatchString(e.Name()) {
			continue
		}
		projectDir := e.Name()
		projectPath := filepath.Join(root, projectDir)

		files, err := os.ReadDir(projectPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			if !strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".save") {
				continue
			}
			rawID := strings.TrimSuffix(name, ".jsonl")
			sessionID := SanitizeID(rawID)
			if sessionID == "" {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			refs = append(refs, SessionRef{
				SessionID:  sessionID,
				ProjectDir: projectDir,
				Path:       filepath.Join(projectPath, name),
				ModTime:    info.ModTime(),
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ModTime.After(refs[j].ModTime)
	})
	return refs, nil
}

// Watch notifies onChange whenever root's immediate subdirectories change,
// letting a caller (UI, statusline) refresh its session list without this
// package taking on any content-diffing responsibility. The returned
// Closer stops the watch.
func Watch(root string, onChange func()) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				onChange()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}
