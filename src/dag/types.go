package dag

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/crypto"
)

// Round is a layer of the DAG.
type Round uint32

// GenesisRound is the round of the genesis blocks, which are implicitly known
// by all authorities.
const GenesisRound Round = 0

// Digest is the SHA256 hash of a block body.
type Digest [crypto.DigestLength]byte

// String returns the first bytes of the digest in hexadecimal, which is enough
// to tell blocks apart in logs.
func (d Digest) String() string {
	return hex.EncodeToString(d[:4])
}

// Hex returns the full hexadecimal representation of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// BlockRef uniquely identifies a block.
type BlockRef struct {
	Round  Round
	Author committee.AuthorityIndex
	Digest Digest
}

// Less orders references by round, then author, then digest.
func (r BlockRef) Less(o BlockRef) bool {
	if r.Round != o.Round {
		return r.Round < o.Round
	}
	if r.Author != o.Author {
		return r.Author < o.Author
	}
	return bytes.Compare(r.Digest[:], o.Digest[:]) < 0
}

// Slot returns the (round, author) position of the referenced block.
func (r BlockRef) Slot() Slot {
	return Slot{Round: r.Round, Authority: r.Author}
}

func (r BlockRef) String() string {
	return fmt.Sprintf("B%d(%v,%v)", r.Round, r.Author, r.Digest)
}

// Slot is a (round, authority) position in the DAG, whether or not the
// authority produced a block there.
type Slot struct {
	Round     Round
	Authority committee.AuthorityIndex
}

// NewSlot creates a Slot.
func NewSlot(round Round, authority committee.AuthorityIndex) Slot {
	return Slot{Round: round, Authority: authority}
}

// Less orders slots by round, then authority.
func (s Slot) Less(o Slot) bool {
	if s.Round != o.Round {
		return s.Round < o.Round
	}
	return s.Authority < o.Authority
}

func (s Slot) String() string {
	return fmt.Sprintf("%v%d", s.Authority, s.Round)
}

// SortRefs sorts references in place, using BlockRef.Less.
func SortRefs(refs []BlockRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}
