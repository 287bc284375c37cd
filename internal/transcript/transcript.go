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
// Package transcript streams JSON-per-line agent transcripts, tolerating
// malformed lines, and exposes a uniform Record view over heterogeneous
// message shapes.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomcat/internal/log"
	"github.com/teradata-labs/loomcat/internal/reverseread"
	"github.com/teradata-labs/loomcat/internal/tokenacct"
)

// ContentPart is one element of a heterogeneous "content" array.
type ContentPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`         // tool_use id
	Name      string          `json:"name,omitempty"`       // tool_use name
	Input     json.RawMessage `json:"input,omitempty"`      // tool_use input
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result linkage
	Content   json.RawMessage `json:"content,omitempty"`    // tool_result payload
}

// rawContent captures the "content" field, which is either a bare string or
// an array of ContentPart objects depending on message shape.
type rawContent struct {
	Text  string
	Parts []ContentPart
}

func (c *rawContent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		c.Text = s
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(b, &parts); err == nil {
		c.Parts = parts
		return nil
	}
	return nil // unrecognized shape: leave both zero-valued, never fail the line
}

type rawMessage struct {
	ID      string     `json:"id,omitempty"`
	Role    string     `json:"role,omitempty"`
	Content rawContent `json:"content,omitempty"`
	Usage   *tokenacct.Usage `json:"usage,omitempty"`
}

// rawLine is the full shape of one transcript JSON line, across every
// variant the runtime is known to emit.
type rawLine struct {
	Type         string           `json:"type,omitempty"`
	ID           string           `json:"id,omitempty"`
	UUID         string           `json:"uuid,omitempty"`
	ParentUUID   *string          `json:"parentUuid,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	IsSidechain  bool             `json:"isSidechain,omitempty"`
	ToolUseID    string           `json:"toolUseID,omitempty"`
	Usage        *tokenacct.Usage `json:"usage,omitempty"`
	Message      *rawMessage      `json:"message,omitempty"`
}

// Record is the uniform, shape-agnostic view of one transcript line.
type Record struct {
	ID          string
	UUID        string
	ParentUUID  string
	HasParent   bool
	TimestampMs int64
	Usage       *tokenacct.Usage
	IsSidechain bool
	Type        string // top-level "type" field, e.g. "user", "assistant", "system"
	Role        string // message.role, mirrors Type for most shapes
	Content     rawContent
	ToolUseID   string // carried from toolUseID when present (system records)
	Raw         json.RawMessage
}

// ParseLine parses one transcript line into a Record. Malformed lines
// return (Record{}, false) and must be skipped by the caller.
func ParseLine(line []byte) (Record, bool) {
	line = trimRight(line)
	if len(line) == 0 {
		return Record{}, false
	}

	var rl rawLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return Record{}, false
	}

	r := Record{
		Type:        rl.Type,
		IsSidechain: rl.IsSidechain,
		ToolUseID:   rl.ToolUseID,
		Raw:         json.RawMessage(append([]byte(nil), line...)),
	}

	r.UUID = rl.UUID
	if rl.ParentUUID != nil {
		r.ParentUUID = *rl.ParentUUID
		r.HasParent = true
	}

	r.TimestampMs = parseTimestampMs(rl.Timestamp)

	// id: first non-null of message.id, id, uuid
	switch {
	case rl.Message != nil && rl.Message.ID != "":
		r.ID = rl.Message.ID
	case rl.ID != "":
		r.ID = rl.ID
	default:
		r.ID = rl.UUID
	}

	// usage: first non-null of top-level usage or message.usage
	switch {
	case rl.Usage != nil:
		r.Usage = rl.Usage
	case rl.Message != nil && rl.Message.Usage != nil:
		r.Usage = rl.Message.Usage
	}

	if rl.Message != nil {
		r.Role = rl.Message.Role
		r.Content = rl.Message.Content
	}
	if r.Role == "" {
		r.Role = rl.Type
	}

	return r, true
}

func trimRight(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

// parseTimestampMs parses an ISO 8601 timestamp into epoch milliseconds,
// returning 0 on any parse failure (empty timestamp included).
func parseTimestampMs(ts string) int64 {
	if ts == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// ExpandHome resolves a leading "~" in path to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// Reader streams Records from a transcript file.
type Reader struct{}

// NewReader creates a transcript Reader.
func NewReader() *Reader { return &Reader{} }

// ParseAll loads the whole file and returns every parseable Record, in file
// order. Intended for small transcripts; large ones should use Stream.
// Malformed lines are silently discarded.
func (r *Reader) ParseAll(path string) []Record {
	path = ExpandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug("transcript: ParseAll open failed", zap.Error(err))
		return nil
	}

	var out []Record
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rec, ok := ParseLine([]byte(line)); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Visit is called once per parseable line. Returning (value, true) collects
// value into Stream's result; returning (_, false) skips the line.
type Visit func(Record) (any, bool)

// Stream iterates path line-by-line without loading the whole file into
// memory, applying visit to every parseable Record.
func (r *Reader) Stream(path string, visit Visit) []any {
	path = ExpandHome(path)
	f, err := os.Open(path)
	if err != nil {
		log.Debug("transcript: Stream open failed", zap.Error(err))
		return nil
	}
	defer f.Close()

	var out []any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		rec, ok := ParseLine(line)
		if !ok {
			continue
		}
		if v, keep := visit(rec); keep {
			out = append(out, v)
		}
	}
	return out
}

// Predicate reports whether a Record matches a caller-defined condition.
type Predicate func(Record) bool

// LastMatching returns the most recent Record satisfying predicate. The
// fast path scans the last 100 lines via the reverse reader; if no match is
// found there (or the fast path can't open the file), it falls back to a
// full forward scan.
func (r *Reader) LastMatching(path string, predicate Predicate) (Record, bool) {
	path = ExpandHome(path)

	lines := reverseread.LastNLines(path, 100)
	for _, line := range lines {
		rec, ok := ParseLine([]byte(line))
		if !ok {
			continue
		}
		if predicate(rec) {
			return rec, true
		}
	}

	// Fallback: full forward scan, keeping the last match seen.
	var (
		found Record
		ok    bool
	)
	all := r.ParseAll(path)
	for _, rec := range all {
		if predicate(rec) {
			found, ok = rec, true
		}
	}
	return found, ok
}
