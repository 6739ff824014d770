package node

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/config"
	"github.com/mosaicnetworks/dagbft/src/crypto/keys"
	"github.com/mosaicnetworks/dagbft/src/dag"
)

// recorder is a CommitHandler which can be read while the node runs.
type recorder struct {
	sync.Mutex
	subDags []*CommittedSubDag
}

func (r *recorder) handle(s *CommittedSubDag) error {
	r.Lock()
	defer r.Unlock()
	r.subDags = append(r.subDags, s)
	return nil
}

func (r *recorder) leaders() []dag.BlockRef {
	r.Lock()
	defer r.Unlock()
	res := []dag.BlockRef{}
	for _, s := range r.subDags {
		res = append(res, s.Leader.Reference())
	}
	return res
}

func testNodeConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.CommitInterval = 5 * time.Millisecond
	conf.Schedule = "round-robin"
	conf.Pipeline = false
	return conf
}

func newTestNode(t *testing.T, conf *config.Config, c *committee.Committee, validator *Validator) (*Node, *recorder) {
	rec := &recorder{}
	node, err := NewNode(conf, validator, c, dag.NewInmemStore(c, 100), rec.handle)
	require.NoError(t, err)
	require.NoError(t, node.Init())
	return node, rec
}

func TestNodeCommits(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := committee.NewTestCommittee()
	node, rec := newTestNode(t, testNodeConfig(t), c, nil)
	node.RunAsync()
	defer node.Shutdown()

	builder := dag.NewBuilder(c)
	builder.Layers(1, 8).Build()

	// submitted in two batches, the later rounds first
	require.NoError(t, node.SubmitBlocks(builder.Blocks(5, 8)))
	require.NoError(t, node.SubmitBlocks(builder.Blocks(1, 4)))

	require.Eventually(t, func() bool {
		return node.LastDecided() == dag.NewSlot(6, 2)
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, []dag.BlockRef{
		builder.Block(3, 3).Reference(),
		builder.Block(6, 2).Reference(),
	}, rec.leaders())

	commits, err := node.GetCommits(-1)
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	stats := node.GetStats()
	assert.Equal(t, "C6", stats["last_decided"])
	assert.Equal(t, "1", stats["last_commit_index"])
	assert.Equal(t, "8", stats["highest_round"])
	assert.Equal(t, "observer", stats["authority"])
	assert.Equal(t, Running.String(), stats["state"])
}

func TestNodeMaintenanceMode(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := committee.NewTestCommittee()
	conf := testNodeConfig(t)
	conf.MaintenanceMode = true

	node, rec := newTestNode(t, conf, c, nil)
	require.Equal(t, Suspended, node.GetState())
	node.RunAsync()
	defer node.Shutdown()

	builder := dag.NewBuilder(c)
	builder.Layers(1, 8).Build()
	require.NoError(t, node.SubmitBlocks(builder.Blocks(1, 8)))

	require.Eventually(t, func() bool {
		return node.GetStats()["highest_round"] == "8"
	}, 5*time.Second, 5*time.Millisecond)

	// several ticks go by without a decision
	time.Sleep(10 * conf.CommitInterval)
	assert.Empty(t, rec.leaders())

	node.Resume()
	require.Eventually(t, func() bool {
		return len(rec.leaders()) == 2
	}, 5*time.Second, 5*time.Millisecond)

	node.Suspend()
	assert.Equal(t, Suspended, node.GetState())
}

func TestNodeShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := committee.NewTestCommittee()
	node, _ := newTestNode(t, testNodeConfig(t), c, nil)
	node.RunAsync()

	node.Shutdown()
	assert.Equal(t, Shutdown, node.GetState())

	builder := dag.NewBuilder(c)
	builder.Layer(1).Build()
	assert.Equal(t, ErrShutdown, node.SubmitBlocks(builder.Blocks(1, 1)))

	// a second call is a no-op
	node.Shutdown()
}

func TestNodeInvalidConfig(t *testing.T) {
	c := committee.NewTestCommittee()

	conf := testNodeConfig(t)
	conf.WaveLength = 2
	_, err := NewNode(conf, nil, c, dag.NewInmemStore(c, 10), nil)
	assert.Error(t, err)

	conf = testNodeConfig(t)
	conf.Schedule = "lottery"
	_, err = NewNode(conf, nil, c, dag.NewInmemStore(c, 10), nil)
	assert.Error(t, err)
}

func TestNodeValidator(t *testing.T) {
	privs := []*ecdsa.PrivateKey{}
	authorities := []*committee.Authority{}
	for i := 0; i < 4; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		privs = append(privs, key)
		authorities = append(authorities,
			committee.NewAuthority(fmt.Sprintf("node%d", i), 1, keys.PublicKeyHex(&key.PublicKey)))
	}
	c, err := committee.NewCommittee(0, authorities)
	require.NoError(t, err)

	node, _ := newTestNode(t, testNodeConfig(t), c, NewValidator(privs[3], "delta"))

	stats := node.GetStats()
	assert.Equal(t, "D", stats["authority"])
	assert.Equal(t, "delta", stats["moniker"])

	// round-robin leaders of the rounds 3 and 6
	assert.True(t, node.IsLeader(3))
	assert.False(t, node.IsLeader(4))
	assert.False(t, node.IsLeader(6))

	outsider, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	observer, _ := newTestNode(t, testNodeConfig(t), c, NewValidator(outsider, "observer"))
	assert.False(t, observer.IsLeader(3))
	assert.Equal(t, "observer", observer.GetStats()["authority"])
}

func TestNodeReputation(t *testing.T) {
	c := committee.NewTestCommittee()

	// 25% of 4 stake: the best scoring authority replaces the worst one
	conf := testNodeConfig(t)
	conf.ReputationScores = []uint64{40, 30, 20, 10}
	conf.SwapStakeThreshold = 25
	node, _ := newTestNode(t, conf, c, nil)

	assert.Equal(t, []committee.AuthorityIndex{0}, node.GetLeaders(3))
	assert.Equal(t, []committee.AuthorityIndex{2}, node.GetLeaders(6))

	// new scores make C the worst authority
	require.NoError(t, node.UpdateReputation(8, []uint64{10, 30, 5, 40}))
	assert.Equal(t, []committee.AuthorityIndex{3}, node.GetLeaders(3))
	assert.Equal(t, []committee.AuthorityIndex{3}, node.GetLeaders(6))
	assert.Equal(t, []committee.AuthorityIndex{1}, node.GetLeaders(9))

	assert.Error(t, node.UpdateReputation(9, []uint64{1, 2}))
	assert.Equal(t, []committee.AuthorityIndex{3}, node.GetLeaders(6), "a rejected update keeps the table")

	conf = testNodeConfig(t)
	conf.ReputationScores = []uint64{1, 2, 3}
	_, err := NewNode(conf, nil, c, dag.NewInmemStore(c, 10), nil)
	assert.Error(t, err)
}
