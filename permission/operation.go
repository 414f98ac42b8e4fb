package permission

import (
	"fmt"
	"strings"
)

// Operation is an arithmetic operation a principal may be allowed to invoke.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Operations returns every known operation in registry order.
func Operations() []Operation {
	return []Operation{OpAdd, OpSubtract, OpMultiply, OpDivide}
}

// ParseOperation maps a wire name (case-insensitive) to an [Operation].
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", name)
	}
	return op, nil
}

// Valid reports whether op is one of the four calculator operations.
func (op Operation) Valid() bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	}
	return false
}

// Symbol returns the display glyph for op, or "?" for unknown operations.
func (op Operation) Symbol() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "−"
	case OpMultiply:
		return "×"
	case OpDivide:
		return "÷"
	default:
		return "?"
	}
}

func (op Operation) String() string { return string(op) }
