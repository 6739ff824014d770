package simulation

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// generator builds the global DAG. Byzantine authorities are the last ones of
// the committee.
type generator struct {
	committee       *committee.Committee
	rng             *rand.Rand
	byzantine       map[committee.AuthorityIndex]bool
	linkProbability float64

	rounds [][]*dag.Block
	blocks map[dag.BlockRef]*dag.Block
}

func newGenerator(c *committee.Committee, byzantine int, linkProbability float64, rng *rand.Rand) *generator {
	g := &generator{
		committee:       c,
		rng:             rng,
		byzantine:       make(map[committee.AuthorityIndex]bool),
		linkProbability: linkProbability,
		rounds:          [][]*dag.Block{dag.GenesisBlocks(c)},
		blocks:          make(map[dag.BlockRef]*dag.Block),
	}
	for _, b := range g.rounds[0] {
		g.blocks[b.Reference()] = b
	}
	for i := c.Size() - byzantine; i < c.Size(); i++ {
		g.byzantine[committee.AuthorityIndex(i)] = true
	}
	return g
}

func (g *generator) isByzantine(a committee.AuthorityIndex) bool {
	return g.byzantine[a]
}

// generate adds rounds 1..rounds.
func (g *generator) generate(rounds dag.Round) {
	for r := dag.Round(1); r <= rounds; r++ {
		prev := byAuthor(g.rounds[r-1])
		blocks := []*dag.Block{}

		for _, author := range g.committee.Indexes() {
			versions := 1
			if g.isByzantine(author) {
				// silent a quarter of the time, equivocating a third of the
				// remaining rounds
				if g.rng.IntN(4) == 0 {
					continue
				}
				if g.rng.IntN(3) == 0 {
					versions = 2
				}
			}

			for k := 0; k < versions; k++ {
				var ancestors []dag.BlockRef
				if g.isByzantine(author) {
					ancestors = g.byzantineLinks(prev)
				} else {
					ancestors = g.honestLinks(author, prev)
				}

				block := dag.NewBlock(r,
					author,
					uint64(r)*1000+uint64(author)*10+uint64(k),
					ancestors,
					[][]byte{[]byte(fmt.Sprintf("%v%d-%d", author, r, k))})
				blocks = append(blocks, block)
				g.blocks[block.Reference()] = block
			}
		}

		g.rounds = append(g.rounds, blocks)
	}
}

// honestLinks links to the author's own previous block and to each other
// authority with linkProbability, then adds random authorities until a stake
// quorum is linked. An equivocating authority is represented by one of its
// versions, chosen at random.
func (g *generator) honestLinks(author committee.AuthorityIndex, prev map[committee.AuthorityIndex][]*dag.Block) []dag.BlockRef {
	agg := committee.NewQuorumAggregator(g.committee)
	chosen := map[committee.AuthorityIndex]bool{}

	available := []committee.AuthorityIndex{}
	for _, a := range g.committee.Indexes() {
		if len(prev[a]) > 0 {
			available = append(available, a)
		}
	}

	for _, a := range available {
		if a == author || g.rng.Float64() < g.linkProbability {
			chosen[a] = true
			agg.Add(a)
		}
	}

	g.rng.Shuffle(len(available), func(i, j int) { available[i], available[j] = available[j], available[i] })
	for _, a := range available {
		if agg.Reached() {
			break
		}
		if !chosen[a] {
			chosen[a] = true
			agg.Add(a)
		}
	}

	return g.pick(chosen, prev)
}

// byzantineLinks links to a random non-empty subset of the previous round.
func (g *generator) byzantineLinks(prev map[committee.AuthorityIndex][]*dag.Block) []dag.BlockRef {
	available := []committee.AuthorityIndex{}
	for _, a := range g.committee.Indexes() {
		if len(prev[a]) > 0 {
			available = append(available, a)
		}
	}

	chosen := map[committee.AuthorityIndex]bool{
		available[g.rng.IntN(len(available))]: true,
	}
	for _, a := range available {
		if g.rng.IntN(2) == 0 {
			chosen[a] = true
		}
	}

	return g.pick(chosen, prev)
}

func (g *generator) pick(chosen map[committee.AuthorityIndex]bool, prev map[committee.AuthorityIndex][]*dag.Block) []dag.BlockRef {
	res := []dag.BlockRef{}
	for _, a := range g.committee.Indexes() {
		if !chosen[a] {
			continue
		}
		versions := prev[a]
		res = append(res, versions[g.rng.IntN(len(versions))].Reference())
	}
	dag.SortRefs(res)
	return res
}

func byAuthor(blocks []*dag.Block) map[committee.AuthorityIndex][]*dag.Block {
	res := make(map[committee.AuthorityIndex][]*dag.Block)
	for _, b := range blocks {
		res[b.Author()] = append(res[b.Author()], b)
	}
	return res
}

// view returns the blocks a validator of the given height has received: the
// honest blocks below height-1, half of the Byzantine ones, a random frontier
// in rounds height-1 and height, and the causal history of all of them.
// Genesis blocks are left out. The result is sorted by reference, so every
// block comes after its ancestors.
func (g *generator) view(height dag.Round) []*dag.Block {
	selected := map[dag.BlockRef]bool{}
	stack := []*dag.Block{}

	add := func(b *dag.Block) {
		if b.IsGenesis() || selected[b.Reference()] {
			return
		}
		selected[b.Reference()] = true
		stack = append(stack, b)
	}

	for r := dag.Round(1); r <= height && int(r) < len(g.rounds); r++ {
		for _, b := range g.rounds[r] {
			switch {
			case r+1 >= height:
				if g.rng.Float64() < 0.7 {
					add(b)
				}
			case g.isByzantine(b.Author()):
				if g.rng.IntN(2) == 0 {
					add(b)
				}
			default:
				add(b)
			}
		}
	}

	res := []*dag.Block{}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		res = append(res, b)
		for _, ref := range b.Ancestors() {
			add(g.blocks[ref])
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Reference().Less(res[j].Reference())
	})
	return res
}
