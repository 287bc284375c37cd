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
package correlate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomcat/internal/operation"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestRun_S1_BasicQA(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"1970-01-01T00:00:01Z","message":{"role":"user","content":"hi"},"uuid":"u1"}`,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:02Z","message":{"id":"a1","role":"assistant","content":[{"type":"text","text":"hello"}]},"usage":{"output_tokens":3},"uuid":"a1"}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 2)

	assert.Equal(t, operation.ToolUser, bundles[0].Operations[0].Tool)
	assert.Equal(t, 1, bundles[0].Operations[0].Tokens)
	assert.Equal(t, "hi", bundles[0].Operations[0].Details)

	assert.Equal(t, operation.ToolAssistant, bundles[1].Operations[0].Tool)
	assert.Equal(t, 3, bundles[1].Operations[0].Tokens)
	assert.Equal(t, 3, bundles[1].Operations[0].GenerationCost)
	assert.Equal(t, 0, bundles[1].Operations[0].ContextGrowth)
	assert.Equal(t, "message", bundles[1].Operations[0].Details)
}

func TestRun_S2_ToolCallWithResponse(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"a1","role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"/a/b.ts"}}]},"usage":{"output_tokens":5,"cache_creation_input_tokens":100},"uuid":"a1"}`,
		`{"type":"user","timestamp":"1970-01-01T00:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"xxxxxxxxxxxxxxxx"}]},"uuid":"u1"}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 2)

	assistant := bundles[0].Operations[0]
	assert.Equal(t, 100, assistant.Tokens)
	assert.Equal(t, 100, assistant.ContextGrowth)
	assert.Equal(t, 5, assistant.GenerationCost)
	assert.Equal(t, "Read: b.ts", assistant.Details)

	toolResp := bundles[1].Operations[0]
	assert.Equal(t, 5, toolResp.Tokens)
	assert.Equal(t, "estimated", string(toolResp.Allocation))
	assert.Equal(t, "b.ts", toolResp.Details, "Pass 5 rewrites ToolResponse details to the bare fragment")
}

func TestRun_S3_CacheExpiredWarning(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:00Z","message":{"id":"a1","role":"assistant","content":[{"type":"text","text":"first"}]},"usage":{"output_tokens":1},"uuid":"a1"}`,
		`{"type":"assistant","timestamp":"1970-01-01T00:10:00Z","message":{"id":"a2","role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls -la"}}]},"usage":{"output_tokens":100,"cache_creation_input_tokens":1000},"uuid":"a2"}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 2)

	second := bundles[1].Operations[0]
	assert.Equal(t, "⚠️ Bash: ls -la (cache expired)", second.Details)
	assert.Equal(t, 600.0, second.TimeGapSeconds)
}

func TestRun_S4_SubAgent(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"a1","role":"assistant","content":[{"type":"tool_use","id":"T1","name":"Task","input":{"subagent_type":"general-purpose","prompt":"P","description":"analyze"}}]},"usage":{"output_tokens":1},"uuid":"a1"}`,
		`{"type":"user","timestamp":"1970-01-01T00:00:02Z","message":{"role":"user","content":"P"},"uuid":"s1","parentUuid":null,"isSidechain":true}`,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:03Z","message":{"id":"s2","role":"assistant","content":[{"type":"text","text":"done"}]},"usage":{"output_tokens":10},"uuid":"s2","parentUuid":"s1","isSidechain":true}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 2, "Task Assistant bundle + one spliced sub-agent bundle")

	sub := bundles[1]
	assert.True(t, sub.IsSubAgent)
	assert.Equal(t, "T1", sub.ParentTaskID)
	require.Len(t, sub.Operations, 2)
	assert.Equal(t, operation.ToolUser, sub.Operations[0].Tool)
	assert.Equal(t, operation.ToolAssistant, sub.Operations[1].Tool)
	assert.Equal(t, "analyze", sub.Operations[0].Details)
}

func TestRun_S5_DuplicateStreamingChunksDeduped(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"a1","role":"assistant","content":[{"type":"text","text":"hello world this is a longer message"}]},"usage":{"output_tokens":1},"uuid":"a1"}`,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:02Z","message":{"id":"a1","role":"assistant","content":[{"type":"text","text":"hello world this is a longer message"}]},"usage":{"output_tokens":1},"uuid":"a1b"}`,
	)
	bundles := New().Run("sess1", path, nil)
	assert.Len(t, bundles, 1)
}

func TestRun_S6_TieBreakPreservesFileOrder(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"A","role":"assistant","content":[{"type":"text","text":"a"}]},"usage":{"output_tokens":1},"uuid":"A"}`,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"B","role":"assistant","content":[{"type":"text","text":"b"}]},"usage":{"output_tokens":1},"uuid":"B"}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 2)
	assert.Equal(t, "A", bundles[0].Operations[0].MessageID)
	assert.Equal(t, "B", bundles[1].Operations[0].MessageID)
}

func TestRun_EmptyTranscript(t *testing.T) {
	path := writeTranscript(t)
	bundles := New().Run("sess1", path, nil)
	assert.Empty(t, bundles)
}

func TestRun_MalformedLinesSkipped(t *testing.T) {
	path := writeTranscript(t,
		`not json at all`,
		`{"type":"user","timestamp":"1970-01-01T00:00:01Z","message":{"role":"user","content":"hi"},"uuid":"u1"}`,
		`{broken`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 1)
	assert.Equal(t, "hi", bundles[0].Operations[0].Details)
}

func TestRun_TaskWithNoAnchorStillEmitsTaskBundle(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","timestamp":"1970-01-01T00:00:01Z","message":{"id":"a1","role":"assistant","content":[{"type":"tool_use","id":"T1","name":"Task","input":{"prompt":"unmatched"}}]},"usage":{"output_tokens":1},"uuid":"a1"}`,
	)
	bundles := New().Run("sess1", path, nil)
	require.Len(t, bundles, 1)
	assert.False(t, bundles[0].IsSubAgent)
}

func TestRun_MissingTranscriptReturnsEmpty(t *testing.T) {
	bundles := New().Run("sess1", "/nonexistent/path.jsonl", nil)
	assert.Empty(t, bundles)
}
