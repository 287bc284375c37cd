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
// Package classify decides the operation variant of a transcript record
// from its heterogeneous shape.
package classify

import "github.com/teradata-labs/loomcat/internal/transcript"

// Kind is the classified variant of one transcript record.
type Kind int

const (
	Unknown Kind = iota
	System
	User
	ToolResponse
	Assistant
)

func (k Kind) String() string {
	switch k {
	case System:
		return "System"
	case User:
		return "User"
	case ToolResponse:
		return "ToolResponse"
	case Assistant:
		return "Assistant"
	default:
		return "Unknown"
	}
}

// Classify decides the Kind of r using both the top-level "type" field and
// "message.role", since the two drift independently across runtime
// versions and either alone is an incomplete signal.
func Classify(r transcript.Record) Kind {
	if r.Type == "system" || r.Role == "system" {
		return System
	}

	if r.Role == "assistant" && r.Usage != nil {
		return Assistant
	}

	if r.Type == "user" || r.Role == "user" {
		if isToolResult(r) {
			return ToolResponse
		}
		return User
	}

	return Unknown
}

// isToolResult reports whether r's first content part is a tool_result
// block, which marks a "user"-role record as a ToolResponse rather than a
// plain user message.
func isToolResult(r transcript.Record) bool {
	if len(r.Content.Parts) == 0 {
		return false
	}
	return r.Content.Parts[0].Type == "tool_result"
}
