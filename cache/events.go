package cache

import "github.com/tidwall/match"

// InvalidationEvent is the closed set of domain events that can drive
// cache invalidation. Implemented as an interface + concrete structs
// (Go's idiomatic stand-in for a Rust tagged enum); the unexported method
// seals the set so no external package can add a new variant.
type InvalidationEvent interface {
	invalidationEvent()
	// Trigger returns the discriminant used to look up the matching Rule.
	Trigger() EventTrigger
}

// EventTrigger identifies the kind of InvalidationEvent, independent of
// its payload, for rule-table lookups.
type EventTrigger int

const (
	// TriggerPaymentDetected fires when a new payment is detected for a
	// corridor.
	TriggerPaymentDetected EventTrigger = iota
	// TriggerAnchorStatusChanged fires when an anchor's status changes.
	TriggerAnchorStatusChanged
	// TriggerAdminInvalidate fires on an operator-initiated invalidation.
	TriggerAdminInvalidate
	// TriggerTtlSweep fires on the periodic sweep timer.
	TriggerTtlSweep
	// TriggerMemoryPressure fires when the process wants the cache
	// trimmed to a target size.
	TriggerMemoryPressure
)

// PaymentDetected signals a new payment was observed for corridor CorridorID.
type PaymentDetected struct{ CorridorID string }

func (PaymentDetected) invalidationEvent()   {}
func (PaymentDetected) Trigger() EventTrigger { return TriggerPaymentDetected }

// AnchorStatusChanged signals AnchorID's status changed.
type AnchorStatusChanged struct{ AnchorID string }

func (AnchorStatusChanged) invalidationEvent()   {}
func (AnchorStatusChanged) Trigger() EventTrigger { return TriggerAnchorStatusChanged }

// AdminInvalidate is an operator-initiated invalidation matching Pattern.
// Pattern is a plain substring unless it contains a glob metacharacter
// ('*' or '?'), in which case it is matched as a shell-style glob.
type AdminInvalidate struct{ Pattern string }

func (AdminInvalidate) invalidationEvent()   {}
func (AdminInvalidate) Trigger() EventTrigger { return TriggerAdminInvalidate }

// TtlSweep is the synthetic event fired by the periodic sweep timer; it
// carries no payload.
type TtlSweep struct{}

func (TtlSweep) invalidationEvent()   {}
func (TtlSweep) Trigger() EventTrigger { return TriggerTtlSweep }

// MemoryPressure asks the cache to evict LRU entries until its size is at
// most TargetSize.
type MemoryPressure struct{ TargetSize int }

func (MemoryPressure) invalidationEvent()   {}
func (MemoryPressure) Trigger() EventTrigger { return TriggerMemoryPressure }

// InvalidationStrategy is how a Rule resolves its trigger event into a
// concrete cache mutation.
type InvalidationStrategy int

const (
	// StrategyExact removes a single, fully-known key.
	StrategyExact InvalidationStrategy = iota
	// StrategyPattern removes every key matching a substring/glob pattern.
	StrategyPattern
	// StrategyPrefix removes every key with a given prefix.
	StrategyPrefix
	// StrategyFlushAll empties the store.
	StrategyFlushAll
)

// Rule pairs an EventTrigger with the InvalidationStrategy used to resolve
// it. Rule tables are data: they are built at startup and may be swapped
// wholesale (see DefaultRules and Worker.SetRules).
type Rule struct {
	Trigger  EventTrigger
	Strategy InvalidationStrategy
}

// DefaultRules returns the rule set described in spec.md §4.1's table:
// PaymentDetected -> substring "corridor:<id>", AnchorStatusChanged ->
// substring "anchor:<id>", AdminInvalidate -> substring/glob on its own
// pattern, TtlSweep -> drop expired, MemoryPressure -> LRU-trim.
func DefaultRules() []Rule {
	return []Rule{
		{Trigger: TriggerPaymentDetected, Strategy: StrategyPattern},
		{Trigger: TriggerAnchorStatusChanged, Strategy: StrategyPattern},
		{Trigger: TriggerAdminInvalidate, Strategy: StrategyPattern},
		{Trigger: TriggerTtlSweep, Strategy: StrategyFlushAll}, // resolved specially: TTL sweep, not a real flush
		{Trigger: TriggerMemoryPressure, Strategy: StrategyExact},
	}
}

// matchesPattern implements the Pattern strategy's matching rule: a plain
// substring, unless the pattern contains a glob metacharacter, in which
// case it is matched with a shell-style glob (tidwall/match). This keeps
// the dominant case (plain substrings from PaymentDetected/
// AnchorStatusChanged) on a cheap strings.Contains while still letting an
// operator's AdminInvalidate use wildcards.
func matchesPattern(key, pattern string) bool {
	if hasGlobMeta(pattern) {
		return match.Match(key, pattern)
	}
	return containsSubstring(key, pattern)
}

func hasGlobMeta(pattern string) bool {
	for _, r := range pattern {
		if r == '*' || r == '?' {
			return true
		}
	}
	return false
}
