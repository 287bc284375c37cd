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
// Package subagent anchors a sidechain sub-agent execution to its
// originating Task tool_use and gathers all of its descendant operations
// via UUID-chain traversal.
package subagent

import (
	"encoding/json"
	"sort"

	"github.com/teradata-labs/loomcat/internal/operation"
)

// Sidechain is one sidechain bundle together with the raw UUID linkage
// needed for traversal, which Operation alone does not carry.
type Sidechain struct {
	UUID       string
	ParentUUID string
	HasParent  bool
	Bundle     operation.Bundle
}

// taskInput is the decoded shape of a Task tool_use's input object.
type taskInput struct {
	Prompt       string `json:"prompt"`
	SubAgentType string `json:"subagent_type,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Anchor finds the first sidechain bundle whose sole operation is a User op
// whose Response equals the Task's prompt exactly (byte-for-byte on the
// decoded prompt string; no normalization is applied).
func Anchor(task operation.ToolUse, sidechains []Sidechain) (Sidechain, bool) {
	var in taskInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return Sidechain{}, false
	}

	for _, sc := range sidechains {
		if len(sc.Bundle.Operations) != 1 {
			continue
		}
		op := sc.Bundle.Operations[0]
		if op.Tool != operation.ToolUser {
			continue
		}
		if promptMatches(op, in.Prompt) {
			return sc, true
		}
	}
	return Sidechain{}, false
}

// promptMatches compares a User operation's decoded response text against
// the Task's prompt string exactly, with no normalization.
func promptMatches(op operation.Operation, prompt string) bool {
	var decoded string
	if err := json.Unmarshal(op.Response, &decoded); err == nil {
		return decoded == prompt
	}
	return string(op.Response) == prompt
}

// Group collects every descendant of anchor via BFS over parentUuid links,
// restricted to sidechain records, and builds one sub-agent Bundle
// annotated with parent_task_id/sub_agent_type. It returns (Bundle{}, false)
// when the anchor itself yields no operations (Pass 3: "a sub-agent bundle
// with zero collected operations is not emitted").
func Group(task operation.ToolUse, anchor Sidechain, all []Sidechain) (operation.Bundle, bool) {
	var in taskInput
	_ = json.Unmarshal(task.Input, &in)

	byParent := map[string][]Sidechain{}
	for _, sc := range all {
		if sc.HasParent {
			byParent[sc.ParentUUID] = append(byParent[sc.ParentUUID], sc)
		}
	}

	visited := map[string]bool{anchor.UUID: true}
	queue := []string{anchor.UUID}
	byUUID := map[string]Sidechain{anchor.UUID: anchor}

	var collected []operation.Operation
	collected = append(collected, annotate(anchor.Bundle.Operations, task.ID, in.SubAgentType)...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, child := range byParent[id] {
			if visited[child.UUID] {
				continue
			}
			visited[child.UUID] = true
			byUUID[child.UUID] = child
			collected = append(collected, annotate(child.Bundle.Operations, task.ID, in.SubAgentType)...)
			queue = append(queue, child.UUID)
		}
	}

	if len(collected) == 0 {
		return operation.Bundle{}, false
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Timestamp < collected[j].Timestamp
	})

	if in.Description != "" {
		collected[0].Details = in.Description
	}

	var duration int64
	if len(collected) > 1 {
		duration = collected[len(collected)-1].Timestamp - collected[0].Timestamp
	}

	total := 0
	for _, op := range collected {
		total += op.Tokens
	}

	return operation.Bundle{
		ID:             "subagent-" + task.ID,
		Timestamp:      collected[0].Timestamp,
		Operations:     collected,
		TotalTokens:    total,
		IsSubAgent:     true,
		SubAgentType:   in.SubAgentType,
		ParentTaskID:   task.ID,
		OperationCount: len(collected),
		DurationMs:     duration,
	}, true
}

func annotate(ops []operation.Operation, taskID, subAgentType string) []operation.Operation {
	out := make([]operation.Operation, len(ops))
	for i, op := range ops {
		op.ParentTaskID = taskID
		op.SubAgentType = subAgentType
		out[i] = op
	}
	return out
}
