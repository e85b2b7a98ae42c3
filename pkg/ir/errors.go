package ir

import "fmt"

// VerifyErrorKind enumerates the structural defects Verify checks for.
type VerifyErrorKind int

const (
	ErrMissingTerminator VerifyErrorKind = iota
	ErrDanglingBlockRef
	ErrDanglingValueRef
	ErrUninitializedLocal
	ErrUnreachableDistinguishedBlock
)

func (k VerifyErrorKind) String() string {
	switch k {
	case ErrMissingTerminator:
		return "missing-terminator"
	case ErrDanglingBlockRef:
		return "dangling-block-ref"
	case ErrDanglingValueRef:
		return "dangling-value-ref"
	case ErrUninitializedLocal:
		return "uninitialized-local"
	case ErrUnreachableDistinguishedBlock:
		return "unreachable-distinguished-block"
	default:
		return "unknown"
	}
}

// ModuleVerifyError is returned by Verify when a Function fails structural
// validation: the IR equivalent of the JIT driver's module-verify-failure
// in the original recompiler pipeline.
type ModuleVerifyError struct {
	Kind  VerifyErrorKind
	Block string
	Detail string
}

func (e *ModuleVerifyError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("ir: verify: %s in block %q: %s", e.Kind, e.Block, e.Detail)
	}
	return fmt.Sprintf("ir: verify: %s: %s", e.Kind, e.Detail)
}
