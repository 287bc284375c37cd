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
// Package correlate drives the transcript reader and hook store through the
// message classifier and operation factory, reconstructs the parent/child
// and sub-agent DAG, and emits a stable, chronologically-coherent sequence
// of bundles.
package correlate

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/teradata-labs/loomcat/internal/classify"
	"github.com/teradata-labs/loomcat/internal/csync"
	"github.com/teradata-labs/loomcat/internal/hookstore"
	"github.com/teradata-labs/loomcat/internal/mtimecache"
	"github.com/teradata-labs/loomcat/internal/operation"
	"github.com/teradata-labs/loomcat/internal/subagent"
	"github.com/teradata-labs/loomcat/internal/transcript"
)

// Engine runs the correlation pipeline for one session. An Engine is safe
// for reuse (and for concurrent Run calls against distinct sessions) across
// a session-index watch loop: the record cache avoids re-parsing an
// unchanged transcript on every refresh, and the pair cache avoids
// re-scanning the hook store for a session it has already joined.
type Engine struct {
	reader    *transcript.Reader
	records   *mtimecache.Cache
	pairCache *csync.Map[string, []hookstore.Pair]
}

// New creates an Engine.
func New() *Engine {
	return &Engine{
		reader:    transcript.NewReader(),
		records:   mtimecache.New(),
		pairCache: csync.NewMap[string, []hookstore.Pair](),
	}
}

// recordBundle pairs a materialized Bundle with the raw transcript Record
// it was built from, so later passes can walk UUID/parentUuid linkage
// without Operation needing to carry that book-keeping permanently.
type recordBundle struct {
	rec    transcript.Record
	bundle operation.Bundle
}

// Run executes Passes 1-6 against transcriptPath and, when store is
// non-nil, layers in hook-store augmentation. Any failure along the way
// degrades to an empty or partial result; Run never returns an error.
func (e *Engine) Run(sessionID, transcriptPath string, store *hookstore.Store) []operation.Bundle {
	records := e.readAll(transcriptPath)
	if len(records) == 0 {
		return nil
	}

	materialized := materialize(sessionID, records)
	e.mergeHookStore(materialized, store, sessionID)

	mainBundles, sidechainBundles := splitSidechains(materialized)

	finalBundles := interleaveSubAgents(mainBundles, sidechainBundles)

	enrichToolResponses(finalBundles)

	sort.SliceStable(finalBundles, func(i, j int) bool {
		return finalBundles[i].Timestamp < finalBundles[j].Timestamp
	})

	return finalBundles
}

// readAll parses path into Records, memoized by the transcript's mtime so a
// repeat Run against an unchanged file (e.g. triggered by sessionindex.Watch
// firing on a sibling session) skips re-reading it entirely.
func (e *Engine) readAll(path string) []transcript.Record {
	cached := e.records.Get("records:"+path, path, func() any {
		raw := e.reader.Stream(path, func(r transcript.Record) (any, bool) { return r, true })
		out := make([]transcript.Record, 0, len(raw))
		for _, v := range raw {
			if r, ok := v.(transcript.Record); ok {
				out = append(out, r)
			}
		}
		return out
	})
	records, _ := cached.([]transcript.Record)
	return records
}

// bundleID picks the Bundle's identity: the record's own UUID when present,
// falling back to whatever identity the operation factory derived.
func bundleID(rec transcript.Record, op operation.Operation) string {
	if rec.UUID != "" {
		return rec.UUID
	}
	return op.MessageID
}

// materialize runs Pass 1: classify, dedupe assistant chunks, assign
// content_part_index, and wrap each surviving record into a one-op Bundle.
func materialize(sessionID string, records []transcript.Record) []recordBundle {
	var (
		out          []recordBundle
		prevTs       int64
		haveFirst    bool
		seenChunks   = map[string]bool{}
		partCounters = map[string]int{}
	)

	for _, rec := range records {
		var gap float64
		if haveFirst {
			gap = float64(rec.TimestampMs-prevTs) / 1000
		}
		prevTs = rec.TimestampMs
		haveFirst = true

		kind := classify.Classify(rec)

		var op operation.Operation
		switch kind {
		case classify.System:
			op = operation.FromSystem(rec)
		case classify.User:
			op = operation.FromUser(rec)
		case classify.ToolResponse:
			op = operation.FromToolResponse(rec)
		case classify.Assistant:
			key := rec.ID + "|" + contentHashPrefix(rec, 50)
			if seenChunks[key] {
				continue
			}
			seenChunks[key] = true

			var partIdx *int
			if len(rec.Content.Parts) == 1 {
				idx := partCounters[rec.ID]
				partCounters[rec.ID] = idx + 1
				partIdx = &idx
			}
			op = operation.FromAssistant(rec, partIdx)
		default:
			continue
		}

		op.SessionID = sessionID
		op.TimeGapSeconds = gap
		if op.Tool == operation.ToolAssistant && len(op.ToolUses) > 0 {
			op.Details = operation.ApplyCacheExpiryWarning(op.Details, gap)
		}

		out = append(out, recordBundle{rec: rec, bundle: operation.NewBundle(bundleID(rec, op), op)})
	}
	return out
}

// contentHashPrefix renders the first n runes of the record's serialized
// *content* (not the whole transcript line, whose timestamp/uuid fields
// legitimately differ between duplicate streaming chunks of one message),
// used as the dedup fingerprint for (message_id, content-hash) per
// the message materialization pass.
func contentHashPrefix(rec transcript.Record, n int) string {
	var s string
	if len(rec.Content.Parts) > 0 {
		b, _ := json.Marshal(rec.Content.Parts)
		s = string(b)
	} else {
		s = rec.Content.Text
	}
	r := []rune(s)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

// mergeHookStore is the optional augmentation layered in when a hook store
// is available: operations are joined to hook records by exact timestamp,
// carrying the request payload into Params when the transcript alone
// didn't populate it. No match, no store, or any error all leave
// operations untouched. Pairs are cached per session since a watch-driven
// caller may re-run the same session repeatedly while new events trickle in.
func (e *Engine) mergeHookStore(materialized []recordBundle, store *hookstore.Store, sessionID string) {
	if store == nil {
		return
	}
	pairs, ok := e.pairCache.Get(sessionID)
	if !ok {
		pairs = store.Pairs(sessionID)
		e.pairCache.Set(sessionID, pairs)
	}
	if len(pairs) == 0 {
		return
	}

	byTimestamp := map[int64]hookstore.Pair{}
	for _, p := range pairs {
		byTimestamp[p.Timestamp] = p
	}

	for i := range materialized {
		op := &materialized[i].bundle.Operations[0]
		if len(op.Params) > 0 {
			continue
		}
		pair, ok := byTimestamp[op.Timestamp]
		if !ok || pair.Request == nil {
			continue
		}
		op.Params = pair.Request.Params
	}
}

// splitSidechains runs Pass 2: partition into main and sidechain bundles.
func splitSidechains(materialized []recordBundle) (main, sidechain []recordBundle) {
	for _, rb := range materialized {
		if rb.bundle.Operations[0].IsSidechain {
			sidechain = append(sidechain, rb)
		} else {
			main = append(main, rb)
		}
	}
	return main, sidechain
}

func toSidechains(rbs []recordBundle) []subagent.Sidechain {
	out := make([]subagent.Sidechain, len(rbs))
	for i, rb := range rbs {
		out[i] = subagent.Sidechain{
			UUID:       rb.rec.UUID,
			ParentUUID: rb.rec.ParentUUID,
			HasParent:  rb.rec.HasParent,
			Bundle:     rb.bundle,
		}
	}
	return out
}

// interleaveSubAgents runs Passes 3 and 4: for every main bundle whose
// Assistant operation invoked one or more Task tools, anchor and group the
// matching sidechain bundle(s) (Pass 3 / Component J), then splice them
// immediately after their originating bundle in tool_use order (Pass 4).
func interleaveSubAgents(mainBundles, sidechainBundles []recordBundle) []operation.Bundle {
	sidechains := toSidechains(sidechainBundles)

	var final []operation.Bundle
	for _, rb := range mainBundles {
		final = append(final, rb.bundle)

		op := rb.bundle.Operations[0]
		if op.Tool != operation.ToolAssistant {
			continue
		}
		for _, tu := range op.ToolUses {
			if !strings.EqualFold(tu.Name, "Task") {
				continue
			}
			anchor, ok := subagent.Anchor(tu, sidechains)
			if !ok {
				continue
			}
			sub, ok := subagent.Group(tu, anchor, sidechains)
			if !ok {
				continue
			}
			final = append(final, sub)
		}
	}
	return final
}

// enrichToolResponses runs Pass 5: rewrite every ToolResponse operation's
// details to mirror the Assistant tool_use that published its tool_use_id.
func enrichToolResponses(bundles []operation.Bundle) {
	published := map[string]operation.ToolUse{}
	for _, b := range bundles {
		for _, op := range b.Operations {
			if op.Tool != operation.ToolAssistant {
				continue
			}
			for _, tu := range op.ToolUses {
				published[tu.ID] = tu
			}
		}
	}

	for bi := range bundles {
		for oi := range bundles[bi].Operations {
			op := &bundles[bi].Operations[oi]
			if op.Tool != operation.ToolToolResponse || op.ToolUseID == "" {
				continue
			}
			tu, ok := published[op.ToolUseID]
			if !ok {
				continue
			}
			op.Details = operation.ToolFragment(tu.Name, tu.Input)
		}
	}
}
