package toolserver

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/whytcard/cortex/internal/errors"
)

// Standard JSON-RPC error codes, plus a block of custom application codes
// reserved below -32000, mirroring the split the wider MCP ecosystem uses.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeNotFound           = -32001
	ErrCodeDimensionMismatch  = -32002
	ErrCodeTimeout            = -32003
	ErrCodeSchemaViolation    = -32004
	ErrCodeRelationViolation  = -32005
)

// ToolError is a domain failure returned inline in a tool's result payload
// rather than as a transport-level error, per the "tool results always
// return successfully at the transport layer" contract: unknown tools are
// the only case that fails at the transport.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// MCPError represents a transport-level JSON-RPC error (unknown tool,
// malformed request).
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("tool server error %d: %s", e.Code, e.Message)
}

// NewMethodNotFoundError reports an unrecognized tool name.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// NewInvalidParamsError reports malformed tool parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// toToolError converts any error from the memory/knowledge/cortex layers
// into the inline {kind, message} shape every tool result carries for
// domain failures, per the error-handling design's user-visible behavior:
// tool calls do not fail at the transport layer for ordinary domain errors.
func toToolError(err error) *ToolError {
	if err == nil {
		return nil
	}

	var ce *cerrors.CortexError
	if errors.As(err, &ce) {
		return &ToolError{Kind: string(ce.Category), Message: ce.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Kind: string(cerrors.CategoryTimeout), Message: "operation timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &ToolError{Kind: string(cerrors.CategoryCancelled), Message: "operation was cancelled"}
	}
	return &ToolError{Kind: string(cerrors.CategoryInternal), Message: err.Error()}
}
