package dag

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/crypto"
	"github.com/mosaicnetworks/dagbft/src/crypto/keys"
)

// BlockBody is the signed part of a Block.
type BlockBody struct {
	Round        Round
	Author       committee.AuthorityIndex
	TimestampMs  uint64
	Ancestors    []BlockRef
	Transactions [][]byte
}

//Marshal - canonical json encoding of body only
func (bb *BlockBody) Marshal() ([]byte, error) {
	return marshal(bb)
}

// Unmarshal ...
func (bb *BlockBody) Unmarshal(data []byte) error {
	return unmarshal(data, bb)
}

// Hash returns the SHA256 digest of the canonical encoding of the body.
func (bb *BlockBody) Hash() (Digest, error) {
	hashBytes, err := bb.Marshal()
	if err != nil {
		return Digest{}, err
	}
	return crypto.Digest(hashBytes), nil
}

// Block is an authority's contribution to a round of the DAG.
type Block struct {
	Body      BlockBody
	Signature string

	digest *Digest
}

// NewBlock creates an unsigned Block.
func NewBlock(round Round,
	author committee.AuthorityIndex,
	timestampMs uint64,
	ancestors []BlockRef,
	transactions [][]byte) *Block {

	b := &Block{
		Body: BlockBody{
			Round:        round,
			Author:       author,
			TimestampMs:  timestampMs,
			Ancestors:    ancestors,
			Transactions: transactions,
		},
	}
	b.Digest()
	return b
}

// Round returns the round of the block.
func (b *Block) Round() Round {
	return b.Body.Round
}

// Author returns the index of the authority that produced the block.
func (b *Block) Author() committee.AuthorityIndex {
	return b.Body.Author
}

// Ancestors returns the references to the parents of the block.
func (b *Block) Ancestors() []BlockRef {
	return b.Body.Ancestors
}

// Transactions returns the opaque payload of the block.
func (b *Block) Transactions() [][]byte {
	return b.Body.Transactions
}

// Timestamp returns the creation time of the block in milliseconds.
func (b *Block) Timestamp() uint64 {
	return b.Body.TimestampMs
}

// Digest returns the hash of the block's body. The value is cached, so the body
// must not be modified once the digest is taken. Blocks obtained from NewBlock
// or Unmarshal have it computed already and are safe for concurrent reads.
func (b *Block) Digest() Digest {
	if b.digest == nil {
		d, err := b.Body.Hash()
		if err != nil {
			// encoding a BlockBody in memory cannot fail
			panic(fmt.Sprintf("hashing block body: %v", err))
		}
		b.digest = &d
	}
	return *b.digest
}

// Reference returns the BlockRef of the block.
func (b *Block) Reference() BlockRef {
	return BlockRef{
		Round:  b.Body.Round,
		Author: b.Body.Author,
		Digest: b.Digest(),
	}
}

// Slot returns the (round, author) slot of the block.
func (b *Block) Slot() Slot {
	return NewSlot(b.Body.Round, b.Body.Author)
}

// IsGenesis returns true for genesis blocks.
func (b *Block) IsGenesis() bool {
	return b.Body.Round == GenesisRound
}

// Sign signs the digest of the block with the private key.
func (b *Block) Sign(privKey *ecdsa.PrivateKey) error {
	digest := b.Digest()
	sig, err := keys.Sign(privKey, digest[:])
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

// Verify checks the signature of the block against a public key.
func (b *Block) Verify(pubKey *ecdsa.PublicKey) bool {
	if b.Signature == "" || pubKey == nil {
		return false
	}
	digest := b.Digest()
	return keys.Verify(pubKey, digest[:], b.Signature)
}

//Marshal - canonical json encoding of the whole block
func (b *Block) Marshal() ([]byte, error) {
	return marshal(b)
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	b.digest = nil
	if err := unmarshal(data, b); err != nil {
		return err
	}
	b.Digest()
	return nil
}

func (b *Block) String() string {
	return b.Reference().String()
}

// GenesisBlocks returns one round-0 block per authority of the committee.
func GenesisBlocks(c *committee.Committee) []*Block {
	res := make([]*Block, 0, c.Size())
	for _, idx := range c.Indexes() {
		res = append(res, NewBlock(GenesisRound, idx, 0, nil, nil))
	}
	return res
}

func marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(v)
}
