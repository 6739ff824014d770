package dag

import (
	"crypto/ecdsa"
	"fmt"
	"math/rand/v2"
	"sort"

	cm "github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/committee"
)

// Builder constructs DAGs layer by layer. It is used by tests and by the
// simulator to describe honest and Byzantine behaviours precisely.
//
// By default every authority produces one block per round, which references
// one block of every authority at the previous round. LayerBuilder options
// remove blocks, remove links, add equivocations, or set ancestors explicitly.
type Builder struct {
	committee *committee.Committee
	blocks    map[BlockRef]*Block
	last      []BlockRef
	signers   map[committee.AuthorityIndex]*ecdsa.PrivateKey
}

// NewBuilder creates a Builder containing the genesis blocks of the committee.
func NewBuilder(c *committee.Committee) *Builder {
	b := &Builder{
		committee: c,
		blocks:    make(map[BlockRef]*Block),
	}
	for _, g := range GenesisBlocks(c) {
		b.blocks[g.Reference()] = g
		b.last = append(b.last, g.Reference())
	}
	return b
}

// WithSigners makes the Builder sign the blocks of the given authorities.
func (b *Builder) WithSigners(signers map[committee.AuthorityIndex]*ecdsa.PrivateKey) *Builder {
	b.signers = signers
	return b
}

// Committee returns the committee of the DAG.
func (b *Builder) Committee() *committee.Committee {
	return b.committee
}

// Layer starts the description of a single round.
func (b *Builder) Layer(round Round) *LayerBuilder {
	return b.Layers(round, round)
}

// Layers starts the description of the rounds from..to (inclusive), which all
// share the same options. The first round must follow the last built round.
func (b *Builder) Layers(from, to Round) *LayerBuilder {
	if from == GenesisRound {
		panic("genesis round is created by NewBuilder")
	}
	return &LayerBuilder{
		builder:  b,
		from:     from,
		to:       to,
		explicit: make(map[committee.AuthorityIndex][]BlockRef),
	}
}

// LastRefs returns the references of the blocks of the last built round.
func (b *Builder) LastRefs() []BlockRef {
	res := make([]BlockRef, len(b.last))
	copy(res, b.last)
	return res
}

// Blocks returns the blocks of rounds from..to (inclusive), sorted by
// reference.
func (b *Builder) Blocks(from, to Round) []*Block {
	res := []*Block{}
	for ref, block := range b.blocks {
		if ref.Round >= from && ref.Round <= to {
			res = append(res, block)
		}
	}
	sortBlocks(res)
	return res
}

// AllBlocks returns all the blocks, genesis included, sorted by reference.
func (b *Builder) AllBlocks() []*Block {
	res := make([]*Block, 0, len(b.blocks))
	for _, block := range b.blocks {
		res = append(res, block)
	}
	sortBlocks(res)
	return res
}

// BlocksAtSlot returns the blocks at a slot, sorted by reference.
func (b *Builder) BlocksAtSlot(slot Slot) []*Block {
	res := []*Block{}
	for ref, block := range b.blocks {
		if ref.Slot() == slot {
			res = append(res, block)
		}
	}
	sortBlocks(res)
	return res
}

// Block returns the first block at (round, author), or nil.
func (b *Builder) Block(round Round, author committee.AuthorityIndex) *Block {
	blocks := b.BlocksAtSlot(NewSlot(round, author))
	if len(blocks) == 0 {
		return nil
	}
	return blocks[0]
}

// Persist accepts all the blocks into a store, in round order. Blocks that
// are already in the store are ignored.
func (b *Builder) Persist(store Store) error {
	return persist(store, b.AllBlocks())
}

func persist(store Store, blocks []*Block) error {
	for _, block := range blocks {
		if block.IsGenesis() {
			continue
		}
		err := store.AcceptBlock(block)
		if err != nil && !cm.IsStore(err, cm.KeyAlreadyExists) {
			return err
		}
	}
	return nil
}

// LayerBuilder describes one or more rounds of a Builder. Options apply to the
// authorities selected with Authorities, or to all authorities if none were
// selected.
type LayerBuilder struct {
	builder *Builder
	from    Round
	to      Round

	selected      map[committee.AuthorityIndex]bool
	equivocations int
	skipBlock     bool
	noLinkTo      []committee.AuthorityIndex
	explicit      map[committee.AuthorityIndex][]BlockRef
	rng           *rand.Rand
	keepLinks     []committee.AuthorityIndex

	blocks []*Block
}

// Authorities selects the authorities affected by the other options.
func (l *LayerBuilder) Authorities(authorities ...committee.AuthorityIndex) *LayerBuilder {
	l.selected = make(map[committee.AuthorityIndex]bool, len(authorities))
	for _, a := range authorities {
		l.selected[a] = true
	}
	return l
}

// SkipBlock prevents the selected authorities from producing blocks.
func (l *LayerBuilder) SkipBlock() *LayerBuilder {
	l.skipBlock = true
	return l
}

// Equivocate makes the selected authorities produce n extra blocks per round,
// which differ by their payload.
func (l *LayerBuilder) Equivocate(n int) *LayerBuilder {
	l.equivocations = n
	return l
}

// NoLinkTo removes the links from the blocks of the selected authorities to
// the blocks of the given authorities.
func (l *LayerBuilder) NoLinkTo(authorities ...committee.AuthorityIndex) *LayerBuilder {
	l.noLinkTo = append(l.noLinkTo, authorities...)
	return l
}

// AncestorsFor sets the ancestors of the author's blocks at the first round
// of the layer, overriding every other option.
func (l *LayerBuilder) AncestorsFor(author committee.AuthorityIndex, refs ...BlockRef) *LayerBuilder {
	l.explicit[author] = refs
	return l
}

// MinAncestorLinks makes the selected authorities link to a random quorum of
// the previous round, drawn from rng. Their own previous block and the blocks
// of the keep authorities are always included.
func (l *LayerBuilder) MinAncestorLinks(rng *rand.Rand, keep ...committee.AuthorityIndex) *LayerBuilder {
	l.rng = rng
	l.keepLinks = keep
	return l
}

func (l *LayerBuilder) isSelected(a committee.AuthorityIndex) bool {
	return l.selected == nil || l.selected[a]
}

// Build creates the blocks of the layer.
func (l *LayerBuilder) Build() *LayerBuilder {
	b := l.builder
	for round := l.from; round <= l.to; round++ {
		ancestors := b.last
		refs := []BlockRef{}

		for _, author := range b.committee.Indexes() {
			if l.skipBlock && l.isSelected(author) {
				continue
			}

			links := l.linksFor(round, author, ancestors)

			count := 1
			if l.isSelected(author) {
				count += l.equivocations
			}

			for k := 0; k < count; k++ {
				var txs [][]byte
				if k > 0 {
					txs = [][]byte{[]byte(fmt.Sprintf("equivocation %d", k))}
				}
				ts := uint64(round)*1000 + uint64(author) + uint64(k)
				block := NewBlock(round, author, ts, links, txs)
				if key, ok := b.signers[author]; ok {
					if err := block.Sign(key); err != nil {
						panic(fmt.Sprintf("signing block: %v", err))
					}
				}
				b.blocks[block.Reference()] = block
				l.blocks = append(l.blocks, block)
				refs = append(refs, block.Reference())
			}
		}

		b.last = refs
	}
	return l
}

// linksFor returns the ancestors of the author's block at round. When an
// author equivocated at the previous round, different linking authors pick
// different versions so that honest authorities disagree on its block.
func (l *LayerBuilder) linksFor(round Round, author committee.AuthorityIndex, ancestors []BlockRef) []BlockRef {
	if refs, ok := l.explicit[author]; ok && round == l.from {
		res := append([]BlockRef{}, refs...)
		SortRefs(res)
		return res
	}

	byAuthor := make(map[committee.AuthorityIndex][]BlockRef)
	authors := []committee.AuthorityIndex{}
	for _, ref := range ancestors {
		if _, ok := byAuthor[ref.Author]; !ok {
			authors = append(authors, ref.Author)
		}
		byAuthor[ref.Author] = append(byAuthor[ref.Author], ref)
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i] < authors[j] })

	if l.isSelected(author) {
		authors = without(authors, l.noLinkTo)
		if l.rng != nil {
			authors = l.randomQuorum(author, authors)
		}
	}

	res := make([]BlockRef, 0, len(authors))
	for _, a := range authors {
		versions := byAuthor[a]
		SortRefs(versions)
		res = append(res, versions[int(author)%len(versions)])
	}
	SortRefs(res)
	return res
}

func (l *LayerBuilder) randomQuorum(author committee.AuthorityIndex, authors []committee.AuthorityIndex) []committee.AuthorityIndex {
	c := l.builder.committee
	agg := committee.NewQuorumAggregator(c)
	chosen := map[committee.AuthorityIndex]bool{}

	available := map[committee.AuthorityIndex]bool{}
	for _, a := range authors {
		available[a] = true
	}

	for _, a := range append([]committee.AuthorityIndex{author}, l.keepLinks...) {
		if available[a] {
			chosen[a] = true
			agg.Add(a)
		}
	}

	shuffled := append([]committee.AuthorityIndex{}, authors...)
	l.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for _, a := range shuffled {
		if agg.Reached() {
			break
		}
		chosen[a] = true
		agg.Add(a)
	}

	res := []committee.AuthorityIndex{}
	for _, a := range authors {
		if chosen[a] {
			res = append(res, a)
		}
	}
	return res
}

// Blocks returns the blocks created by this layer, in creation order.
func (l *LayerBuilder) Blocks() []*Block {
	return l.blocks
}

// Persist accepts the blocks of the layer into a store.
func (l *LayerBuilder) Persist(store Store) error {
	return persist(store, l.blocks)
}

func without(authorities []committee.AuthorityIndex, excluded []committee.AuthorityIndex) []committee.AuthorityIndex {
	if len(excluded) == 0 {
		return authorities
	}
	res := []committee.AuthorityIndex{}
	for _, a := range authorities {
		skip := false
		for _, e := range excluded {
			if a == e {
				skip = true
				break
			}
		}
		if !skip {
			res = append(res, a)
		}
	}
	return res
}
