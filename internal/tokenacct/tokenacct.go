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
// Package tokenacct computes per-message token totals, deltas, cache
// efficiency, and character-to-token estimates for a session transcript.
package tokenacct

import (
	"math"
	"sync"
)

// CacheCreation holds the ephemeral cache-creation breakdown nested under a
// usage object, when the runtime reports it.
type CacheCreation struct {
	Ephemeral5mInputTokens int `json:"ephemeral_5m_input_tokens,omitempty"`
	Ephemeral1hInputTokens int `json:"ephemeral_1h_input_tokens,omitempty"`
}

// Usage is the per-assistant-turn token accounting reported by the runtime.
type Usage struct {
	InputTokens              int            `json:"input_tokens,omitempty"`
	OutputTokens             int            `json:"output_tokens,omitempty"`
	CacheCreationInputTokens int            `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int            `json:"cache_read_input_tokens,omitempty"`
	CacheCreation            *CacheCreation `json:"cache_creation,omitempty"`
}

// CumulativeTotal sums all four token fields. Missing fields count as zero.
func CumulativeTotal(u Usage) int {
	return u.InputTokens + u.OutputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

// ConversationGrowth is the input+output contribution of one turn, excluding
// cache bookkeeping.
func ConversationGrowth(u Usage) int {
	return u.InputTokens + u.OutputTokens
}

// CacheEfficiency is the proportion of cache-read tokens to
// (cache-read + cache-creation) tokens, as a percentage. Zero when the
// denominator is zero.
func CacheEfficiency(u Usage) float64 {
	denom := u.CacheReadInputTokens + u.CacheCreationInputTokens
	if denom == 0 {
		return 0
	}
	return float64(u.CacheReadInputTokens) / float64(denom) * 100
}

// Ephemeral5m returns the ephemeral 5-minute cache tokens, or 0 if absent.
func Ephemeral5m(u Usage) int {
	if u.CacheCreation == nil {
		return 0
	}
	return u.CacheCreation.Ephemeral5mInputTokens
}

// Ephemeral1h returns the ephemeral 1-hour cache tokens, or 0 if absent.
func Ephemeral1h(u Usage) int {
	if u.CacheCreation == nil {
		return 0
	}
	return u.CacheCreation.Ephemeral1hInputTokens
}

// EstimateTokens converts a character count to an estimated token count
// using the fixed heuristic ceil(n / 3.7). n is assumed non-negative.
func EstimateTokens(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / 3.7))
}

// Capacity describes remaining room under a token limit.
type Capacity struct {
	Remaining  int
	Percentage float64
	NearLimit  bool // true when Percentage < 10
}

// RemainingCapacity computes remaining headroom under limit given a total.
func RemainingCapacity(total, limit int) Capacity {
	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if limit > 0 {
		pct = float64(remaining) / float64(limit) * 100
	}
	return Capacity{
		Remaining:  remaining,
		Percentage: pct,
		NearLimit:  pct < 10,
	}
}

// Token limit constants for the two auto-compaction configurations
// recognized by the runtime's configuration file.
const (
	AutoCompactLimit   = 156_000
	NoAutoCompactLimit = 190_000
)

// Allocation describes how a token count was derived.
type Allocation string

const (
	AllocationExact       Allocation = "exact"
	AllocationProportional Allocation = "proportional"
	AllocationEstimated   Allocation = "estimated"
)

// Budget tracks a running token budget against a context window, reserving
// a portion of the window for model output.
type Budget struct {
	mu             sync.RWMutex
	MaxTokens      int
	ReservedTokens int
	UsedTokens     int
}

// NewBudget creates a budget reserving reservedForOutput tokens of maxTokens.
func NewBudget(maxTokens, reservedForOutput int) *Budget {
	return &Budget{MaxTokens: maxTokens, ReservedTokens: reservedForOutput}
}

// Available returns the number of tokens still free for new content.
func (b *Budget) Available() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.MaxTokens - b.ReservedTokens - b.UsedTokens
}

// Use marks tokens as used, returning false without mutating state if the
// budget would be exceeded.
func (b *Budget) Use(tokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tokens > b.MaxTokens-b.ReservedTokens-b.UsedTokens {
		return false
	}
	b.UsedTokens += tokens
	return true
}

// Free returns tokens to the budget, floored at zero.
func (b *Budget) Free(tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UsedTokens -= tokens
	if b.UsedTokens < 0 {
		b.UsedTokens = 0
	}
}

// UsagePercentage returns the percentage of the available window consumed.
func (b *Budget) UsagePercentage() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	available := b.MaxTokens - b.ReservedTokens
	if available == 0 {
		return 0
	}
	return float64(b.UsedTokens) / float64(available) * 100
}

// NearLimit reports whether usage is at or above thresholdPct.
func (b *Budget) NearLimit(thresholdPct float64) bool {
	return b.UsagePercentage() >= thresholdPct
}

// Critical reports whether usage is at or above 85%.
func (b *Budget) Critical() bool { return b.NearLimit(85.0) }

// Warning reports whether usage is at or above 70%.
func (b *Budget) Warning() bool { return b.NearLimit(70.0) }
