package dag

import (
	"sort"
	"strconv"
	"sync"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"

	cm "github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/committee"
)

const indexDegree = 32

// InmemStore implements the Store interface in memory. Blocks are kept for the
// lifetime of the store, indexed by reference in a B-tree so that slots and
// rounds can be scanned in order. Commits are kept in an LRU cache, so older
// commits are evicted once the cache is full; BadgerStore falls back to disk
// for those.
type InmemStore struct {
	sync.RWMutex

	cacheSize    int
	blocks       map[BlockRef]*Block
	index        *btree.BTreeG[BlockRef]
	committed    map[BlockRef]struct{}
	commitCache  *lru.Cache //index => Commit
	highestRound Round
	lastCommit   int
}

// NewInmemStore creates a new InmemStore containing the genesis blocks of the
// committee.
func NewInmemStore(c *committee.Committee, cacheSize int) *InmemStore {
	commitCache, err := lru.New(cacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}

	store := &InmemStore{
		cacheSize:   cacheSize,
		blocks:      make(map[BlockRef]*Block),
		index:       btree.NewG(indexDegree, BlockRef.Less),
		committed:   make(map[BlockRef]struct{}),
		commitCache: commitCache,
		lastCommit:  -1,
	}

	for _, g := range GenesisBlocks(c) {
		store.insert(g)
	}

	return store
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// HighestAcceptedRound implements the Store interface.
func (s *InmemStore) HighestAcceptedRound() Round {
	s.RLock()
	defer s.RUnlock()
	return s.highestRound
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(ref BlockRef) (*Block, error) {
	s.RLock()
	defer s.RUnlock()
	b, ok := s.blocks[ref]
	if !ok {
		return nil, cm.NewStoreErr("Blocks", cm.KeyNotFound, ref.String())
	}
	return b, nil
}

// Contains implements the Store interface.
func (s *InmemStore) Contains(ref BlockRef) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.blocks[ref]
	return ok
}

// BlocksAtSlot implements the Store interface.
func (s *InmemStore) BlocksAtSlot(slot Slot) []*Block {
	s.RLock()
	defer s.RUnlock()
	return s.scan(
		BlockRef{Round: slot.Round, Author: slot.Authority},
		BlockRef{Round: slot.Round, Author: slot.Authority + 1},
	)
}

// BlocksAtRound implements the Store interface.
func (s *InmemStore) BlocksAtRound(round Round) []*Block {
	s.RLock()
	defer s.RUnlock()
	return s.scan(BlockRef{Round: round}, BlockRef{Round: round + 1})
}

// scan returns the blocks with references in [from, to). The caller must hold
// the lock.
func (s *InmemStore) scan(from, to BlockRef) []*Block {
	res := []*Block{}
	s.index.AscendRange(from, to, func(ref BlockRef) bool {
		res = append(res, s.blocks[ref])
		return true
	})
	return res
}

// AncestorsAtRound implements the Store interface. It walks the causal history
// of the block breadth-first, without going below the target round.
func (s *InmemStore) AncestorsAtRound(block *Block, round Round) []*Block {
	s.RLock()
	defer s.RUnlock()

	res := []*Block{}
	if block.Round() <= round {
		return res
	}

	visited := map[BlockRef]bool{}
	frontier := []*Block{block}
	for len(frontier) > 0 {
		next := []*Block{}
		for _, b := range frontier {
			for _, ref := range b.Ancestors() {
				if ref.Round < round || visited[ref] {
					continue
				}
				visited[ref] = true
				ancestor, ok := s.blocks[ref]
				if !ok {
					continue
				}
				if ref.Round == round {
					res = append(res, ancestor)
				} else {
					next = append(next, ancestor)
				}
			}
		}
		frontier = next
	}

	sortBlocks(res)
	return res
}

// AcceptBlock implements the Store interface.
func (s *InmemStore) AcceptBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	ref := block.Reference()
	if _, ok := s.blocks[ref]; ok {
		return cm.NewStoreErr("Blocks", cm.KeyAlreadyExists, ref.String())
	}

	for _, a := range block.Ancestors() {
		if _, ok := s.blocks[a]; !ok {
			return cm.NewStoreErr("Blocks", cm.MissingAncestor, a.String())
		}
	}

	s.insert(block)
	return nil
}

// insert adds a block without checks. The caller must hold the lock.
func (s *InmemStore) insert(block *Block) {
	ref := block.Reference()
	s.blocks[ref] = block
	s.index.ReplaceOrInsert(ref)
	if ref.Round > s.highestRound {
		s.highestRound = ref.Round
	}
}

// SetCommitted implements the Store interface.
func (s *InmemStore) SetCommitted(ref BlockRef) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.blocks[ref]; !ok {
		return cm.NewStoreErr("Blocks", cm.KeyNotFound, ref.String())
	}
	s.committed[ref] = struct{}{}
	return nil
}

// IsCommitted implements the Store interface.
func (s *InmemStore) IsCommitted(ref BlockRef) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.committed[ref]
	return ok
}

// GetCommit implements the Store interface.
func (s *InmemStore) GetCommit(index int) (*Commit, error) {
	res, ok := s.commitCache.Get(index)
	if !ok {
		return nil, cm.NewStoreErr("CommitCache", cm.KeyNotFound, strconv.Itoa(index))
	}
	return res.(*Commit), nil
}

// SetCommit implements the Store interface.
func (s *InmemStore) SetCommit(commit *Commit) error {
	s.Lock()
	defer s.Unlock()

	if commit.Index <= s.lastCommit {
		return cm.NewStoreErr("CommitCache", cm.TooLate, strconv.Itoa(commit.Index))
	}
	if commit.Index != s.lastCommit+1 {
		return cm.NewStoreErr("CommitCache", cm.SkippedIndex, strconv.Itoa(commit.Index))
	}

	s.commitCache.Add(commit.Index, commit)
	s.lastCommit = commit.Index
	return nil
}

// LastCommitIndex implements the Store interface.
func (s *InmemStore) LastCommitIndex() int {
	s.RLock()
	defer s.RUnlock()
	return s.lastCommit
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface. It returns an empty string.
func (s *InmemStore) StorePath() string {
	return ""
}

func sortBlocks(blocks []*Block) {
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Reference().Less(blocks[j].Reference())
	})
}
