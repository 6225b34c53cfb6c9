package pa

import "errors"

// Error taxonomy. Callers compare with errors.Is.
var (
	// ErrInvalidArgument covers duplicate trie insertion and flooding
	// delays at or above MaxFloodingDelay. RuleAdd does not reject a
	// rule-priority of zero; such a rule never wins the rule pass.
	ErrInvalidArgument = errors.New("pa: invalid argument")

	// ErrAllocation is returned when cross-product LDP creation fails
	// partway through a Link/DP add; all LDPs created during the failed
	// call are unwound before this is returned.
	ErrAllocation = errors.New("pa: allocation failed")

	// ErrAlreadyRegistered is returned by LinkAdd/DPAdd for an entity
	// that is already registered.
	ErrAlreadyRegistered = errors.New("pa: already registered")
)
