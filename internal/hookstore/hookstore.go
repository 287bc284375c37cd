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
// Package hookstore reads request/response records written by pre/post
// tool-invocation hooks into an ephemeral, SQLite-backed key-value store
// It is a reader only; the hooks themselves are an external
// collaborator out of scope.
package hookstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomcat/internal/log"
	_ "github.com/teradata-labs/loomcat/internal/sqlitedriver"
)

// Request is one pre-invocation hook record.
type Request struct {
	Tool      string          `json:"tool"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"session_id"`
	Sequence  *int64          `json:"sequence,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Response is one post-invocation hook record. Response may be a plain JSON
// value or a "file://" URL string pointing to a spilled-over payload; Pairs
// dereferences the latter transparently.
type Response struct {
	Tool         string          `json:"tool"`
	ResponseRaw  json.RawMessage `json:"response"`
	ResponseSize int             `json:"response_size"`
	MessageID    string          `json:"message_id,omitempty"`
	Sequence     *int64          `json:"sequence,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
}

// Pair is a joined request/response record keyed by sequence (preferred) or
// timestamp (legacy fallback).
type Pair struct {
	Key       string
	Request   *Request
	Response  *Response
	Timestamp int64
}

// filePlaceholder is substituted for Response.ResponseRaw when a file://
// spill-over reference cannot be read back.
const filePlaceholder = `"<response stored off-store, unavailable>"`

// Store is a read-only handle onto the hook store's SQLite database. A nil
// *Store is valid and behaves as an always-empty store, so callers that
// could not open one may still construct the correlation engine uniformly.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens the hook store at path. Any failure to open (including a
// missing file) returns a nil store; a nil store's methods always behave
// as an empty list, never an error.
func Open(path string) *Store {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		log.Debug("hookstore: db file not found", zap.String("path", path))
		return nil
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Debug("hookstore: open failed", zap.Error(err))
		return nil
	}
	if err := db.Ping(); err != nil {
		db.Close()
		log.Debug("hookstore: ping failed", zap.Error(err))
		return nil
	}
	return &Store{db: db, path: path}
}

// Close releases the underlying database handle. Safe to call on a nil
// *Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// kvRow is the shape of the hook store's underlying table: a flat
// string-keyed, string-valued table mirroring the logical
// "session:{id}:operations:{epoch_ms}:{request|response}" key layout.
type kvRow struct {
	key   string
	value string
}

func (s *Store) scanKeys(prefix string) []kvRow {
	rows, err := s.db.Query(`SELECT key, value FROM hook_records WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		log.Debug("hookstore: scan failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var out []kvRow
	for rows.Next() {
		var r kvRow
		if err := rows.Scan(&r.key, &r.value); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Pairs returns every request/response pair recorded for sessionID, sorted
// by timestamp ascending. A nil Store, a missing session, or any query
// failure all yield an empty (non-nil-error) slice.
func (s *Store) Pairs(sessionID string) []Pair {
	if s == nil || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.scanKeys(fmt.Sprintf("session:%s:operations:", sessionID))
	if len(rows) == 0 && len(sessionID) == 8 {
		// Short-id retry: prefix match session:{short}*:operations:.
		rows = s.scanKeysShortPrefix(sessionID)
	}

	requests := map[string]*Request{}
	responses := map[string]*Response{}
	seqOf := map[string]*int64{}

	for _, row := range rows {
		parts := strings.Split(row.key, ":")
		// session : {id} : operations : {epoch_ms} : {request|response}
		if len(parts) < 5 {
			continue
		}
		epoch := parts[len(parts)-2]
		kind := parts[len(parts)-1]

		switch kind {
		case "request":
			var req Request
			if err := json.Unmarshal([]byte(row.value), &req); err != nil {
				continue
			}
			requests[epoch] = &req
			seqOf[epoch] = req.Sequence
		case "response":
			var resp Response
			if err := json.Unmarshal([]byte(row.value), &resp); err != nil {
				continue
			}
			resolveSpillOver(&resp)
			responses[epoch] = &resp
			if resp.Sequence != nil {
				seqOf[epoch] = resp.Sequence
			}
		}
	}

	return joinPairs(requests, responses, seqOf)
}

func (s *Store) scanKeysShortPrefix(shortID string) []kvRow {
	rows, err := s.db.Query(`SELECT key, value FROM hook_records WHERE key LIKE 'session:' || ? || '%:operations:%'`, shortID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []kvRow
	for rows.Next() {
		var r kvRow
		if err := rows.Scan(&r.key, &r.value); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// joinPairs joins request and response maps (keyed by epoch_ms string) on
// sequence when both sides carry one, falling back to the shared epoch key
// (the legacy timestamp join) otherwise.
func joinPairs(requests map[string]*Request, responses map[string]*Response, seqOf map[string]*int64) []Pair {
	bySeq := map[int64][]string{}
	for epoch, seq := range seqOf {
		if seq != nil {
			bySeq[*seq] = append(bySeq[*seq], epoch)
		}
	}

	consumed := map[string]bool{}
	var out []Pair

	for _, epochs := range bySeq {
		var req *Request
		var resp *Response
		var ts int64
		for _, e := range epochs {
			if r, ok := requests[e]; ok {
				req = r
			}
			if r, ok := responses[e]; ok {
				resp = r
			}
			consumed[e] = true
			if v, err := strconv.ParseInt(e, 10, 64); err == nil {
				ts = v
			}
		}
		if req == nil && resp == nil {
			continue
		}
		out = append(out, Pair{Key: epochsKey(epochs), Request: req, Response: resp, Timestamp: ts})
	}

	// Legacy timestamp join for whatever wasn't resolved by sequence.
	for epoch, req := range requests {
		if consumed[epoch] {
			continue
		}
		resp := responses[epoch]
		ts, _ := strconv.ParseInt(epoch, 10, 64)
		out = append(out, Pair{Key: epoch, Request: req, Response: resp, Timestamp: ts})
		consumed[epoch] = true
	}
	for epoch, resp := range responses {
		if consumed[epoch] {
			continue
		}
		ts, _ := strconv.ParseInt(epoch, 10, 64)
		out = append(out, Pair{Key: epoch, Request: nil, Response: resp, Timestamp: ts})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func epochsKey(epochs []string) string {
	sort.Strings(epochs)
	return strings.Join(epochs, ",")
}

// resolveSpillOver dereferences a "file://"-prefixed response payload,
// replacing resp.ResponseRaw with the referenced file's parsed JSON
// contents. On any failure to read or parse, ResponseRaw is left as a
// placeholder string rather than propagating an error.
func resolveSpillOver(resp *Response) {
	var asString string
	if err := json.Unmarshal(resp.ResponseRaw, &asString); err != nil {
		return
	}
	if !strings.HasPrefix(asString, "file://") {
		return
	}

	path := strings.TrimPrefix(asString, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		resp.ResponseRaw = json.RawMessage(filePlaceholder)
		return
	}
	if !json.Valid(data) {
		resp.ResponseRaw = json.RawMessage(filePlaceholder)
		return
	}
	resp.ResponseRaw = json.RawMessage(data)
}

// Sweep is a no-op: the reader never enforces the 24-hour hook-record
// expiry; that is the writer's responsibility.
func Sweep(*Store) {}
