package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation is the unit of permission granularity
type Operation string

const (
	OpView   Operation = "view"
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Operations lists every operation in display order
var Operations = []Operation{OpView, OpCreate, OpEdit, OpDelete}

// aliases used by client-side action checks
var operationAliases = map[string]Operation{
	"read":   OpView,
	"add":    OpCreate,
	"update": OpEdit,
	"remove": OpDelete,
}

// Valid reports whether op is one of the four operations
func (op Operation) Valid() bool {
	return op.bit() != 0
}

func (op Operation) bit() OperationSet {
	switch op {
	case OpView:
		return 1 << 0
	case OpCreate:
		return 1 << 1
	case OpEdit:
		return 1 << 2
	case OpDelete:
		return 1 << 3
	}
	return 0
}

// ParseOperation accepts an operation name or one of its action aliases
// (read, add, update, remove). Matching ignores case and surrounding space.
func ParseOperation(s string) (Operation, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if op := Operation(key); op.Valid() {
		return op, nil
	}
	if op, ok := operationAliases[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// OperationSet is an immutable set of operations. The zero value is empty.
type OperationSet uint8

// NewOperationSet builds a set, ignoring invalid operations
func NewOperationSet(ops ...Operation) OperationSet {
	var set OperationSet
	for _, op := range ops {
		set |= op.bit()
	}
	return set
}

// ParseOperationSet builds a set from raw names and fails on the first unknown one
func ParseOperationSet(names []string) (OperationSet, error) {
	var set OperationSet
	for _, name := range names {
		op, err := ParseOperation(name)
		if err != nil {
			return 0, err
		}
		set |= op.bit()
	}
	return set, nil
}

// AllOperations is the set of every operation
func AllOperations() OperationSet {
	return NewOperationSet(Operations...)
}

// Has reports whether op is in the set. Invalid operations are never present.
func (s OperationSet) Has(op Operation) bool {
	bit := op.bit()
	return bit != 0 && s&bit == bit
}

// With returns a copy of s that includes op
func (s OperationSet) With(op Operation) OperationSet {
	return s | op.bit()
}

// Without returns a copy of s that excludes op
func (s OperationSet) Without(op Operation) OperationSet {
	return s &^ op.bit()
}

// Empty reports whether the set grants nothing
func (s OperationSet) Empty() bool {
	return s&AllOperations() == 0
}

// Slice returns the operations in display order
func (s OperationSet) Slice() []Operation {
	ops := make([]Operation, 0, len(Operations))
	for _, op := range Operations {
		if s.Has(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Strings returns the operation names in display order
func (s OperationSet) Strings() []string {
	ops := s.Slice()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op)
	}
	return out
}

func (s OperationSet) String() string {
	return "[" + strings.Join(s.Strings(), ",") + "]"
}

// MarshalJSON encodes the set as an array of operation names
func (s OperationSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of operation names or aliases
func (s *OperationSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseOperationSet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
