package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/common"
	"github.com/mosaicnetworks/dagbft/src/config"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/node"
)

func newTestService(t *testing.T) (*httptest.Server, *node.Node, *dag.Builder) {
	registry := prometheus.NewRegistry()

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.CommitInterval = 5 * time.Millisecond
	conf.Schedule = "round-robin"
	conf.Pipeline = false
	conf.Registerer = registry

	c := committee.NewTestCommittee()
	n, err := node.NewNode(conf, nil, c, dag.NewInmemStore(c, 100), nil)
	require.NoError(t, err)
	require.NoError(t, n.Init())

	s := NewService("", n, registry, common.NewTestEntry(t))
	server := httptest.NewServer(s.Handler())

	return server, n, dag.NewBuilder(c)
}

func getJSON(t *testing.T, url string, v interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestService(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	server, n, builder := newTestService(t)
	defer server.Close()

	n.RunAsync()
	defer n.Shutdown()

	builder.Layers(1, 11).Build()
	require.NoError(t, n.SubmitBlocks(builder.Blocks(1, 11)))

	require.Eventually(t, func() bool {
		return n.LastDecided() == dag.NewSlot(9, 1)
	}, 5*time.Second, 5*time.Millisecond)

	stats := map[string]string{}
	getJSON(t, server.URL+"/stats", &stats)
	assert.Equal(t, "B9", stats["last_decided"])
	assert.Equal(t, "2", stats["last_commit_index"])
	assert.Equal(t, "observer", stats["authority"])

	commits := []CommitInfo{}
	getJSON(t, server.URL+"/commits/", &commits)
	require.Len(t, commits, 3)
	assert.Equal(t, builder.Block(3, 3).Reference().String(), commits[0].Block)
	assert.False(t, commits[0].Skipped)

	commits = []CommitInfo{}
	getJSON(t, server.URL+"/commits/1", &commits)
	require.Len(t, commits, 1)
	assert.Equal(t, 2, commits[0].Index)
	assert.Equal(t, "B9", commits[0].Leader)

	leaders := []string{}
	getJSON(t, server.URL+"/leaders/12", &leaders)
	assert.Equal(t, []string{"A"}, leaders)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dagbft_committed_leaders_total")
	assert.Contains(t, string(body), "dagbft_last_decided_leader_round")
}

func TestServiceBadParameters(t *testing.T) {
	server, n, _ := newTestService(t)
	defer server.Close()
	defer n.Shutdown()

	for _, path := range []string{"/commits/x", "/leaders/", "/leaders/-1"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}
