package node

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/commit"
	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/config"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/schedule"
)

// ErrShutdown is returned when blocks are submitted to a node that was shut
// down.
var ErrShutdown = errors.New("node is shut down")

//Node defines a dagbft node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	// validator is nil for observers.
	validator *Validator
	authority *committee.Authority

	core     *Core
	coreLock sync.Mutex

	committee *committee.Committee
	schedule  *schedule.Swapped

	submitCh   chan []*dag.Block
	shutdownCh chan struct{}

	controlTimer *ControlTimer

	start time.Time
}

//NewNode is a factory method that returns a Node instance. It builds the
//leader schedule and the UniversalCommitter from the configuration.
func NewNode(conf *config.Config,
	validator *Validator,
	c *committee.Committee,
	store dag.Store,
	commitHandler CommitHandler,
) (*Node, error) {

	logger := conf.Logger()

	var authority *committee.Authority
	if validator != nil {
		logger = logger.WithField("moniker", validator.Moniker)
		authority, _ = validator.Authority(c)
	}

	sched, err := schedule.NewSwapped(conf.Schedule, c, conf.ReputationScores, conf.SwapStakeThreshold)
	if err != nil {
		return nil, err
	}

	committer, err := commit.NewBuilder(c, store, sched).
		WithWaveLength(dag.Round(conf.WaveLength)).
		WithNumberOfLeaders(conf.NumberOfLeaders).
		WithPipeline(conf.Pipeline).
		WithMetrics(commit.NewMetrics(conf.MetricsNamespace, conf.Registerer)).
		WithLogger(logger.WithField("prefix", "committer")).
		Build()
	if err != nil {
		return nil, err
	}

	node := Node{
		conf:         conf,
		logger:       logger.WithField("prefix", "node"),
		validator:    validator,
		authority:    authority,
		core:         NewCore(c, store, committer, commitHandler, logger.WithField("prefix", "core")),
		committee:    c,
		schedule:     sched,
		submitCh:     make(chan []*dag.Block, 64),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
	}

	return &node, nil
}

//Init recovers the last decision from the store and sets the initial state.
func (n *Node) Init() error {
	if err := n.core.Recover(); err != nil {
		return err
	}

	if n.conf.MaintenanceMode {
		n.logger.Debug("Maintenance mode => Suspended")
		n.setState(Suspended)
	} else {
		n.setState(Running)
	}
	n.start = time.Now()

	return nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	n.goFunc(n.Run)
}

//Run invokes the main loop of the node
func (n *Node) Run() {
	//The ControlTimer paces the commit attempts.
	n.goFunc(func() { n.controlTimer.Run(n.conf.CommitInterval) })

	//Execute Node State Machine
	for {
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Running:
			n.run()
		case Suspended:
			n.suspend()
		case Shutdown:
			return
		}
	}
}

// run accepts submitted blocks and tries to commit at every tick, until the
// state changes.
func (n *Node) run() {
	for n.getState() == Running {
		select {
		case blocks := <-n.submitCh:
			n.addBlocks(blocks)
		case <-n.controlTimer.tickCh:
			n.commit()
			n.controlTimer.Reset(n.conf.CommitInterval)
		case <-n.shutdownCh:
			return
		}
	}
}

// suspend keeps accepting blocks without committing them.
func (n *Node) suspend() {
	for n.getState() == Suspended {
		select {
		case blocks := <-n.submitCh:
			n.addBlocks(blocks)
		case <-n.controlTimer.tickCh:
			n.controlTimer.Reset(n.conf.CommitInterval)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) addBlocks(blocks []*dag.Block) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if err := n.core.AddBlocks(blocks); err != nil {
		n.logger.WithError(err).Error("AddBlocks")
	}
}

func (n *Node) commit() {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	start := time.Now()
	subDags, err := n.core.TryCommit()
	elapsed := time.Since(start)

	if err != nil {
		n.logger.WithError(err).Error("TryCommit")
	}

	if len(subDags) > 0 {
		n.logger.WithFields(logrus.Fields{
			"sub_dags":     len(subDags),
			"last_decided": n.core.LastDecided(),
			"duration":     elapsed.Nanoseconds(),
		}).Debug("TryCommit")
		n.logStats()
	}
}

//SubmitBlocks queues blocks for the run loop. Blocks may be submitted in any
//order; those with missing ancestors wait for them.
func (n *Node) SubmitBlocks(blocks []*dag.Block) error {
	if n.getState() == Shutdown {
		return ErrShutdown
	}
	select {
	case n.submitCh <- blocks:
		return nil
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

//Suspend stops committing, but keeps accepting blocks.
func (n *Node) Suspend() {
	if n.getState() == Running {
		n.setState(Suspended)
	}
}

//Resume leaves the Suspended state.
func (n *Node) Resume() {
	if n.getState() == Suspended {
		n.setState(Running)
	}
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.controlTimer.Shutdown()

		n.waitRoutines()

		//the store should only be closed once all concurrent operations are
		//finished
		if err := n.core.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	}
}

//GetState returns the state of the node
func (n *Node) GetState() State {
	return n.getState()
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	highest := n.core.store.HighestAcceptedRound()

	leaders := []string{}
	for _, l := range n.core.Leaders(highest) {
		leaders = append(leaders, l.String())
	}

	timeElapsed := time.Since(n.start)
	blocksPerSecond := float64(n.core.CommittedBlocks()) / timeElapsed.Seconds()

	s := map[string]string{
		"last_decided":      n.core.LastDecided().String(),
		"last_commit_index": strconv.Itoa(n.core.store.LastCommitIndex()),
		"highest_round":     strconv.FormatUint(uint64(highest), 10),
		"leaders":           strings.Join(leaders, ","),
		"pending_blocks":    strconv.Itoa(n.core.PendingBlocks()),
		"committed_blocks":  strconv.Itoa(n.core.CommittedBlocks()),
		"blocks_per_second": strconv.FormatFloat(blocksPerSecond, 'f', 2, 64),
		"state":             n.getState().String(),
		"authority":         "observer",
		"moniker":           "",
	}
	if n.authority != nil {
		s["authority"] = n.authority.Index.String()
	}
	if n.validator != nil {
		s["moniker"] = n.validator.Moniker
	}
	return s
}

// logStats must be called with the coreLock held.
func (n *Node) logStats() {
	n.logger.WithFields(logrus.Fields{
		"last_decided":      n.core.LastDecided(),
		"last_commit_index": n.core.store.LastCommitIndex(),
		"highest_round":     n.core.store.HighestAcceptedRound(),
		"pending_blocks":    n.core.PendingBlocks(),
		"committed_blocks":  n.core.CommittedBlocks(),
		"state":             n.getState().String(),
	}).Debug("Stats")
}

//GetCommits returns the commit records with an index greater than skip.
func (n *Node) GetCommits(skip int) ([]*dag.Commit, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.CommitsSince(skip)
}

//LastDecided returns the slot of the last decided leader.
func (n *Node) LastDecided() dag.Slot {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.LastDecided()
}

//GetLeaders returns the leader authorities of a round.
func (n *Node) GetLeaders(round dag.Round) []committee.AuthorityIndex {
	return n.core.Leaders(round)
}

//UpdateReputation replaces the swap table of the leader schedule with one
//computed from new reputation scores, agreed upon at round. Every validator
//must apply the same scores before deciding the leaders they affect.
func (n *Node) UpdateReputation(round dag.Round, scores []uint64) error {
	table, err := schedule.NewSwapTable(n.committee, round, scores, n.conf.SwapStakeThreshold)
	if err != nil {
		return err
	}
	n.schedule.UpdateTable(table)
	n.logger.WithFields(logrus.Fields{
		"round": round,
		"good":  table.Good(),
	}).Debug("UpdateReputation")
	return nil
}

//IsLeader returns true if this node's authority is a leader of the round.
func (n *Node) IsLeader(round dag.Round) bool {
	if n.authority == nil {
		return false
	}
	for _, l := range n.GetLeaders(round) {
		if l == n.authority.Index {
			return true
		}
	}
	return false
}
