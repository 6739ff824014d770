package dag

import (
	"errors"
	"fmt"
)

// Reasons for rejecting a block.
var (
	ErrInvalidAuthority           = errors.New("invalid authority")
	ErrGenesisBlock               = errors.New("genesis blocks cannot be received")
	ErrInvalidAncestorRound       = errors.New("ancestor round is not lower than block round")
	ErrDuplicateAncestorAuthority = errors.New("more than one ancestor from the same authority")
	ErrInvalidSignature           = errors.New("invalid signature")
	ErrNoAncestors                = errors.New("block has no ancestors")
)

// VerificationError is returned by Verifier.Verify. It wraps one of the reason
// errors above so that callers can test it with errors.Is.
type VerificationError struct {
	Ref    BlockRef
	Reason error
	Detail string
}

// Error implements the error interface
func (e *VerificationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("block %v: %v: %s", e.Ref, e.Reason, e.Detail)
	}
	return fmt.Sprintf("block %v: %v", e.Ref, e.Reason)
}

// Unwrap returns the reason.
func (e *VerificationError) Unwrap() error {
	return e.Reason
}

func newVerificationError(b *Block, reason error, format string, args ...interface{}) *VerificationError {
	return &VerificationError{
		Ref:    b.Reference(),
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}
