package types

import (
	"github.com/google/uuid"
)

// NewRuleID generates a UUIDv7 rule identifier for rules created without one.
// Time-ordered IDs keep store inserts clustered and list output roughly chronological.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewActionID generates a UUIDv7 action identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewActionID() ActionID {
	return ActionID(uuid.Must(uuid.NewV7()).String())
}

