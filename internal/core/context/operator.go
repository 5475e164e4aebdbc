// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// Operator identifies who triggered an allocation or an audit run.
// For service callers it is the calling subsystem, for CLI runs the OS user.
type Operator struct {
	Name   string
	Source string // "cli", "worker", "service"
}

type operatorContextKey struct{}

// WithOperator adds Operator to context.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns Operator from context.
func GetOperator(ctx context.Context) *Operator {
	if v, ok := ctx.Value(operatorContextKey{}).(*Operator); ok {
		return v
	}
	return nil
}

// GetOperatorName returns operator name from context or empty string.
func GetOperatorName(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.Name
	}
	return ""
}
