package models

import (
	"encoding/json"
	"time"
)

// Flag is a directional interaction record from SourceUser to TargetUser.
// At most one Flag exists per (SourceUser, TargetUser, Category).
type Flag struct {
	SourceUser string    `json:"sourceUser"`
	TargetUser string    `json:"targetUser"`
	Category   string    `json:"category"`
	Value      FlagValue `json:"value"`
	IsRating   bool      `json:"isRating"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`

	// Version is bumped on every write; 0 means the flag has not been stored yet.
	Version int64 `json:"version"`
}

// ValueType is derived from the carried value.
func (f Flag) ValueType() ValueType {
	if f.Value == nil {
		return ""
	}
	return f.Value.Type()
}

// IntValue returns the integer value of the flag, if it carries one.
func (f Flag) IntValue() (int64, bool) {
	return IntOf(f.Value)
}

// MarshalJSON adds the derived valueType next to the value.
func (f Flag) MarshalJSON() ([]byte, error) {
	type alias Flag
	return json.Marshal(struct {
		alias
		ValueType ValueType `json:"valueType"`
	}{alias: alias(f), ValueType: f.ValueType()})
}

// FlagKey identifies a flag by its dyad and category.
type FlagKey struct {
	SourceUser string
	TargetUser string
	Category   string
}

// Key returns the identity of the flag.
func (f Flag) Key() FlagKey {
	return FlagKey{SourceUser: f.SourceUser, TargetUser: f.TargetUser, Category: f.Category}
}

// Mirror returns the key of the reverse-direction flag in the same category.
func (k FlagKey) Mirror() FlagKey {
	return FlagKey{SourceUser: k.TargetUser, TargetUser: k.SourceUser, Category: k.Category}
}
