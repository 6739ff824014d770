package dag

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"

	cm "github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/committee"
)

const (
	committeeKey    = "committee"
	blockPrefix     = "block"
	committedPrefix = "committed"
	commitPrefix    = "commit"
)

// BadgerStore contains references to the Badger database and an InmemStore.
// Every block and commit is written to both. If maintenanceMode is activated,
// data is not written to the Badger database, but only to the InmemStore; this
// is used to replay a database without modifying it.
type BadgerStore struct {
	inmemStore      *InmemStore
	committee       *committee.Committee
	db              *badger.DB
	path            string
	maintenanceMode bool
	logger          *logrus.Entry
}

func openBadger(path string, logger *logrus.Entry) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	return badger.Open(opts)
}

// NewBadgerStore creates a brand new Store with a new database in path. It
// records the committee so that a later LoadBadgerStore can check it.
func NewBadgerStore(c *committee.Committee,
	cacheSize int,
	path string,
	logger *logrus.Entry) (*BadgerStore, error) {

	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(c, cacheSize),
		committee:  c,
		db:         handle,
		path:       path,
		logger:     logger,
	}

	if err := store.dbSetCommittee(c); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadBadgerStore opens an existing database and replays its blocks, committed
// flags, and commits into a new InmemStore. It fails if the database was
// created for a different committee.
func LoadBadgerStore(c *committee.Committee,
	cacheSize int,
	path string,
	maintenanceMode bool,
	logger *logrus.Entry) (*BadgerStore, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:      NewInmemStore(c, cacheSize),
		committee:       c,
		db:              handle,
		path:            path,
		maintenanceMode: maintenanceMode,
		logger:          logger,
	}

	if err := store.bootstrap(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadOrCreateBadgerStore loads the database in path if there is one, and
// creates it otherwise.
func LoadOrCreateBadgerStore(c *committee.Committee,
	cacheSize int,
	path string,
	logger *logrus.Entry) (*BadgerStore, error) {

	store, err := LoadBadgerStore(c, cacheSize, path, false, logger)
	if err == nil {
		return store, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	return NewBadgerStore(c, cacheSize, path, logger)
}

func (s *BadgerStore) bootstrap() error {
	stored, err := s.dbGetCommittee()
	if err != nil {
		return mapError(err, "Committee", committeeKey)
	}
	if stored.Hex() != s.committee.Hex() {
		return fmt.Errorf("database %s belongs to committee %s, not %s",
			s.path, stored.Hex(), s.committee.Hex())
	}

	blocks, err := s.dbBlocks()
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := s.inmemStore.AcceptBlock(b); err != nil {
			return fmt.Errorf("replaying block %v: %w", b.Reference(), err)
		}
	}

	committed, err := s.dbCommitted()
	if err != nil {
		return err
	}
	for _, ref := range committed {
		if err := s.inmemStore.SetCommitted(ref); err != nil {
			return err
		}
	}

	commits, err := s.dbCommits()
	if err != nil {
		return err
	}
	for _, c := range commits {
		if err := s.inmemStore.SetCommit(c); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"blocks":       len(blocks),
			"committed":    len(committed),
			"commits":      len(commits),
			"highestRound": s.inmemStore.HighestAcceptedRound(),
		}).Debug("Loaded BadgerStore")
	}

	return nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func blockKey(ref BlockRef) []byte {
	return []byte(fmt.Sprintf("%s_%09d_%05d_%s", blockPrefix, ref.Round, ref.Author, ref.Digest.Hex()))
}

func committedKey(ref BlockRef) []byte {
	return []byte(fmt.Sprintf("%s_%09d_%05d_%s", committedPrefix, ref.Round, ref.Author, ref.Digest.Hex()))
}

func commitKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", commitPrefix, index))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// HighestAcceptedRound implements the Store interface.
func (s *BadgerStore) HighestAcceptedRound() Round {
	return s.inmemStore.HighestAcceptedRound()
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(ref BlockRef) (*Block, error) {
	return s.inmemStore.GetBlock(ref)
}

// Contains implements the Store interface.
func (s *BadgerStore) Contains(ref BlockRef) bool {
	return s.inmemStore.Contains(ref)
}

// BlocksAtSlot implements the Store interface.
func (s *BadgerStore) BlocksAtSlot(slot Slot) []*Block {
	return s.inmemStore.BlocksAtSlot(slot)
}

// BlocksAtRound implements the Store interface.
func (s *BadgerStore) BlocksAtRound(round Round) []*Block {
	return s.inmemStore.BlocksAtRound(round)
}

// AncestorsAtRound implements the Store interface.
func (s *BadgerStore) AncestorsAtRound(block *Block, round Round) []*Block {
	return s.inmemStore.AncestorsAtRound(block, round)
}

// AcceptBlock implements the Store interface.
func (s *BadgerStore) AcceptBlock(block *Block) error {
	if err := s.inmemStore.AcceptBlock(block); err != nil {
		return err
	}
	if !s.maintenanceMode {
		return s.dbSetBlock(block)
	}
	return nil
}

// SetCommitted implements the Store interface.
func (s *BadgerStore) SetCommitted(ref BlockRef) error {
	if err := s.inmemStore.SetCommitted(ref); err != nil {
		return err
	}
	if !s.maintenanceMode {
		return s.dbSetCommitted(ref)
	}
	return nil
}

// IsCommitted implements the Store interface.
func (s *BadgerStore) IsCommitted(ref BlockRef) bool {
	return s.inmemStore.IsCommitted(ref)
}

// GetCommit implements the Store interface.
func (s *BadgerStore) GetCommit(index int) (*Commit, error) {
	res, err := s.inmemStore.GetCommit(index)
	if err != nil {
		res, err = s.dbGetCommit(index)
	}
	return res, mapError(err, "Commit", string(commitKey(index)))
}

// SetCommit implements the Store interface.
func (s *BadgerStore) SetCommit(commit *Commit) error {
	if err := s.inmemStore.SetCommit(commit); err != nil {
		return err
	}
	if !s.maintenanceMode {
		return s.dbSetCommit(commit)
	}
	return nil
}

// LastCommitIndex implements the Store interface.
func (s *BadgerStore) LastCommitIndex() int {
	return s.inmemStore.LastCommitIndex()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

// GetMaintenanceMode is a getter
func (s *BadgerStore) GetMaintenanceMode() bool {
	return s.maintenanceMode
}

// SetMaintenanceMode is a setter
func (s *BadgerStore) SetMaintenanceMode(val bool) {
	s.maintenanceMode = val
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbGetCommittee() (*committee.Committee, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(committeeKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return committee.Unmarshal(data)
}

func (s *BadgerStore) dbSetCommittee(c *committee.Committee) error {
	val, err := c.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(committeeKey), val)
	})
}

func (s *BadgerStore) dbSetBlock(block *Block) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := block.Marshal()
	if err != nil {
		return err
	}

	//insert [round_author_digest] => [block bytes]
	if err := tx.Set(blockKey(block.Reference()), val); err != nil {
		return err
	}

	return tx.Commit()
}

// dbBlocks returns all the persisted blocks. Keys sort by round, so ancestors
// always come before their descendants.
func (s *BadgerStore) dbBlocks() ([]*Block, error) {
	res := []*Block{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(blockPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			block := new(Block)
			if err := block.Unmarshal(data); err != nil {
				return err
			}
			res = append(res, block)
		}
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbSetCommitted(ref BlockRef) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(committedKey(ref), []byte{1})
	})
}

func (s *BadgerStore) dbCommitted() ([]BlockRef, error) {
	res := []BlockRef{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(committedPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, err := parseRefKey(string(it.Item().Key()), committedPrefix)
			if err != nil {
				return err
			}
			res = append(res, ref)
		}
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbGetCommit(index int) (*Commit, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(commitKey(index))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	commit := new(Commit)
	if err := commit.Unmarshal(data); err != nil {
		return nil, err
	}

	return commit, nil
}

func (s *BadgerStore) dbSetCommit(commit *Commit) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := commit.Marshal()
	if err != nil {
		return err
	}

	//insert [index] => [commit bytes]
	if err := tx.Set(commitKey(commit.Index), val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbCommits() ([]*Commit, error) {
	res := []*Commit{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(commitPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			commit := new(Commit)
			if err := commit.Unmarshal(data); err != nil {
				return err
			}
			res = append(res, commit)
		}
		return nil
	})
	return res, err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func parseRefKey(key string, prefix string) (BlockRef, error) {
	var (
		ref       BlockRef
		round     uint32
		author    uint32
		digestHex string
	)
	if _, err := fmt.Sscanf(key, prefix+"_%09d_%05d_%s", &round, &author, &digestHex); err != nil {
		return ref, fmt.Errorf("malformed key %q: %w", key, err)
	}
	raw, err := hex.DecodeString(digestHex)
	if err != nil || len(raw) != len(ref.Digest) {
		return ref, fmt.Errorf("malformed digest in key %q", key)
	}
	ref.Round = Round(round)
	ref.Author = committee.AuthorityIndex(author)
	copy(ref.Digest[:], raw)
	return ref, nil
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
