package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/node"
)

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	gatherer    prometheus.Gatherer
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService creates a Service for a node. Metrics are served from gatherer
// when it is not nil.
func NewService(bindAddress string,
	n *node.Node,
	gatherer prometheus.Gatherer,
	logger *logrus.Entry) *Service {

	service := Service{
		bindAddress: bindAddress,
		node:        n,
		gatherer:    gatherer,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering dagbft API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/commits/", s.makeHandler(s.GetCommits))
	s.mux.HandleFunc("/leaders/", s.makeHandler(s.GetLeaders))
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler of the service, for use in another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving dagbft API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// CommitInfo is the JSON form of a commit record.
type CommitInfo struct {
	Index   int    `json:"index"`
	Leader  string `json:"leader"`
	Skipped bool   `json:"skipped"`
	Block   string `json:"block,omitempty"`
	Blocks  int    `json:"blocks"`
}

func newCommitInfo(c *dag.Commit) CommitInfo {
	info := CommitInfo{
		Index:   c.Index,
		Leader:  c.Leader.String(),
		Skipped: c.Skipped,
		Blocks:  len(c.Refs),
	}
	if !c.Skipped {
		info.Block = c.Block.String()
	}
	return info
}

// GetCommits returns the commit records following the index in the path, or
// all of them if there is none.
func (s *Service) GetCommits(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/commits/")

	skip := -1
	if param != "" {
		index, err := strconv.Atoi(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing commit index parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		skip = index
	}

	commits, err := s.node.GetCommits(skip)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving commits since %d", skip)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := make([]CommitInfo, len(commits))
	for i, c := range commits {
		res[i] = newCommitInfo(c)
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetLeaders returns the leaders of the round in the path.
func (s *Service) GetLeaders(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/leaders/")

	round, err := strconv.ParseUint(param, 10, 32)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing round parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	leaders := []string{}
	for _, l := range s.node.GetLeaders(dag.Round(round)) {
		leaders = append(leaders, l.String())
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(leaders)
}
