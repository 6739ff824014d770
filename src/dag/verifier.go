package dag

import (
	"github.com/mosaicnetworks/dagbft/src/committee"
)

// Verifier checks that blocks are well formed before they are accepted into a
// Store. It does not check that ancestors are present; that is the job of
// Store.AcceptBlock.
type Verifier struct {
	committee *committee.Committee
}

// NewVerifier creates a Verifier for the given committee.
func NewVerifier(c *committee.Committee) *Verifier {
	return &Verifier{committee: c}
}

// Verify returns a *VerificationError if the block is invalid.
//
// When the author has a public key in the committee, the signature must be
// valid. Committees without keys, as used in tests and simulations, skip the
// signature check.
func (v *Verifier) Verify(b *Block) error {
	if !v.committee.IsValidIndex(b.Author()) {
		return newVerificationError(b, ErrInvalidAuthority, "author %d, committee size %d", uint32(b.Author()), v.committee.Size())
	}

	if b.IsGenesis() {
		return newVerificationError(b, ErrGenesisBlock, "")
	}

	if len(b.Ancestors()) == 0 {
		return newVerificationError(b, ErrNoAncestors, "")
	}

	seen := make(map[committee.AuthorityIndex]bool, len(b.Ancestors()))
	for _, a := range b.Ancestors() {
		if !v.committee.IsValidIndex(a.Author) {
			return newVerificationError(b, ErrInvalidAuthority, "ancestor %v", a)
		}
		if a.Round >= b.Round() {
			return newVerificationError(b, ErrInvalidAncestorRound, "ancestor %v", a)
		}
		if seen[a.Author] {
			return newVerificationError(b, ErrDuplicateAncestorAuthority, "ancestor %v", a)
		}
		seen[a.Author] = true
	}

	pub, err := v.committee.Authority(b.Author()).PublicKey()
	if err != nil {
		return newVerificationError(b, ErrInvalidSignature, "%v", err)
	}
	if pub != nil && !b.Verify(pub) {
		return newVerificationError(b, ErrInvalidSignature, "")
	}

	return nil
}
