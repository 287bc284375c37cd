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
// Package operation converts a classified transcript record into one
// typed, normalized Operation.
package operation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/teradata-labs/loomcat/internal/tokenacct"
	"github.com/teradata-labs/loomcat/internal/transcript"
)

// Tool is the operation's display-facing tool identity.
type Tool string

const (
	ToolUser         Tool = "User"
	ToolSystem       Tool = "System"
	ToolAssistant    Tool = "Assistant"
	ToolToolResponse Tool = "ToolResponse"
	ToolContext      Tool = "Context"
)

// ToolUse is one tool_use content block extracted from an Assistant
// operation's response, kept for sub-agent anchoring and tool-response
// enrichment.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Bundle is the container for one logical message, or for a
// sub-agent's rolled-up execution when IsSubAgent is true.
type Bundle struct {
	ID          string
	Timestamp   int64
	Operations  []Operation
	TotalTokens int

	IsSubAgent     bool
	SubAgentType   string
	ParentTaskID   string
	OperationCount int
	DurationMs     int64
}

// NewBundle wraps a single operation into a one-op Bundle (Pass 1 of the
// correlation engine).
func NewBundle(id string, op Operation) Bundle {
	return Bundle{
		ID:             id,
		Timestamp:      op.Timestamp,
		Operations:     []Operation{op},
		TotalTokens:    op.Tokens,
		OperationCount: 1,
	}
}

// Operation is one unit of work within a message.
type Operation struct {
	Tool      Tool
	ToolUseID string

	MessageID string
	SessionID string
	Timestamp int64
	Sequence  *int64

	Params   json.RawMessage
	Response json.RawMessage

	ResponseSize    int
	Tokens          int
	ContextGrowth   int
	GenerationCost  int
	CacheEfficiency float64
	TimeGapSeconds  float64

	Ephemeral5m int
	Ephemeral1h int

	Allocation tokenacct.Allocation
	Details    string

	IsSidechain bool

	ContentPartIndex *int

	ParentTaskID string
	SubAgentType string

	// ToolUses is populated only for Assistant operations; it is the
	// decoded list of tool_use blocks found in the assistant's content,
	// used by the correlation engine to anchor Task sub-agent bundles and
	// to enrich matching ToolResponse operations.
	ToolUses []ToolUse
}

// firstChars returns the first n runes of s, collapsing whitespace.
func firstChars(s string, n int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	r := []rune(collapsed)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

// FromSystem builds a System operation.
func FromSystem(r transcript.Record) Operation {
	text := rawText(r)
	op := Operation{
		Tool:         ToolSystem,
		ToolUseID:    r.ToolUseID,
		MessageID:    r.ID,
		Timestamp:    r.TimestampMs,
		IsSidechain:  r.IsSidechain,
		Response:     r.Raw,
		ResponseSize: len(text),
		Allocation:   tokenacct.AllocationEstimated,
		Details:      firstChars(text, 50),
	}
	op.Tokens = tokenacct.EstimateTokens(len(text))
	return op
}

// FromUser builds a User operation for a non-tool-result user message. The
// response payload is the decoded message text (not the raw transcript
// line) so that sub-agent anchoring can compare it against a Task's
// prompt string by exact equality.
func FromUser(r transcript.Record) Operation {
	text := rawText(r)
	encodedText, _ := json.Marshal(text)
	op := Operation{
		Tool:         ToolUser,
		MessageID:    r.ID,
		Timestamp:    r.TimestampMs,
		IsSidechain:  r.IsSidechain,
		Response:     encodedText,
		ResponseSize: len(text),
		Allocation:   tokenacct.AllocationEstimated,
		Details:      firstChars(text, 50),
	}
	op.Tokens = tokenacct.EstimateTokens(len(text))
	return op
}

// FromToolResponse builds a ToolResponse operation. Its details are later
// overwritten in Pass 5 when the publishing Assistant tool_use is found.
func FromToolResponse(r transcript.Record) Operation {
	var (
		toolUseID string
		payload   string
	)
	if len(r.Content.Parts) > 0 {
		part := r.Content.Parts[0]
		toolUseID = part.ToolUseID
		// A plain-string result is measured by its decoded text; any other
		// shape is measured by its raw JSON.
		if err := json.Unmarshal(part.Content, &payload); err != nil {
			payload = string(part.Content)
		}
	}

	op := Operation{
		Tool:         ToolToolResponse,
		ToolUseID:    toolUseID,
		MessageID:    r.ID,
		Timestamp:    r.TimestampMs,
		IsSidechain:  r.IsSidechain,
		Response:     r.Raw,
		ResponseSize: len(payload),
		Allocation:   tokenacct.AllocationEstimated,
	}
	op.Tokens = tokenacct.EstimateTokens(len(payload))
	return op
}

// FromAssistant builds an Assistant operation. contentPartIndex is set by
// the caller (the correlation engine) for single-part streaming chunks;
// pass nil otherwise.
func FromAssistant(r transcript.Record, contentPartIndex *int) Operation {
	usage := tokenacct.Usage{}
	if r.Usage != nil {
		usage = *r.Usage
	}

	growth := usage.CacheCreationInputTokens
	gen := usage.OutputTokens
	tokens := gen
	if growth > 0 {
		tokens = growth
	}

	toolUses := extractToolUses(r)

	op := Operation{
		Tool:             ToolAssistant,
		MessageID:        r.ID,
		Timestamp:        r.TimestampMs,
		IsSidechain:      r.IsSidechain,
		Response:         r.Raw,
		ResponseSize:     len(r.Raw),
		Tokens:           tokens,
		ContextGrowth:    growth,
		GenerationCost:   gen,
		CacheEfficiency:  tokenacct.CacheEfficiency(usage),
		Ephemeral5m:      tokenacct.Ephemeral5m(usage),
		Ephemeral1h:      tokenacct.Ephemeral1h(usage),
		Allocation:       tokenacct.AllocationExact,
		ContentPartIndex: contentPartIndex,
		ToolUses:         toolUses,
		Details:          assistantDetails(toolUses),
	}
	return op
}

// assistantDetails mirrors the old engine's display fallback: when the
// assistant made no tool calls, the headline is simply "message". When it
// did, the detail names the tool plus its formatted fragment.
func assistantDetails(toolUses []ToolUse) string {
	if len(toolUses) == 0 {
		return "message"
	}
	u := toolUses[0]
	return fmt.Sprintf("%s: %s", u.Name, ToolFragment(u.Name, u.Input))
}

func extractToolUses(r transcript.Record) []ToolUse {
	var out []ToolUse
	for _, part := range r.Content.Parts {
		if part.Type != "tool_use" {
			continue
		}
		out = append(out, ToolUse{ID: part.ID, Name: part.Name, Input: part.Input})
	}
	return out
}

func rawText(r transcript.Record) string {
	if r.Content.Text != "" {
		return r.Content.Text
	}
	var texts []string
	for _, p := range r.Content.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// cacheExpiredThresholdSeconds is the frozen "time since previous message"
// threshold past which a tool-call detail gets the cache-expired warning
// (see DESIGN.md for the resolved behavior).
const cacheExpiredThresholdSeconds = 300

// ApplyCacheExpiryWarning prefixes/suffixes a tool-call detail string when
// timeGapSeconds exceeds the cache-expiry threshold. Only tool-call
// details get this treatment; a plain "message" headline never does.
func ApplyCacheExpiryWarning(detail string, timeGapSeconds float64) string {
	if detail == "message" {
		return detail
	}
	if timeGapSeconds > cacheExpiredThresholdSeconds {
		return "⚠️ " + detail + " (cache expired)"
	}
	return detail
}

var fileFieldRe = regexp.MustCompile(`"file_path"\s*:\s*"([^"]*)"`)
var commandFieldRe = regexp.MustCompile(`"command"\s*:\s*"([^"]*)"`)
var patternFieldRe = regexp.MustCompile(`"pattern"\s*:\s*"([^"]*)"`)

// ToolFragment renders the core, tool-name-free detail fragment for a tool
// call, keyed off the tool name via a fixed lookup table. It is also the
// value a ToolResponse's details are rewritten to once its publishing
// Assistant tool_use is found.
func ToolFragment(name string, input json.RawMessage) string {
	switch strings.ToLower(name) {
	case "read", "write", "edit":
		return baseName(extractField(input, fileFieldRe))
	case "bash":
		return truncate(extractField(input, commandFieldRe), 30)
	case "glob", "grep":
		return extractField(input, patternFieldRe)
	default:
		return name
	}
}

func extractField(input json.RawMessage, re *regexp.Regexp) string {
	m := re.FindSubmatch(input)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
