package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/node"
)

//NewReplayCmd returns the command that recomputes the commit sequence of a
//database
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "replay",
		Short:   "Replay the blocks of a database and check its commit sequence",
		PreRunE: loadConfig,
		RunE:    replay,
	}
	AddReplayFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func replay(cmd *cobra.Command, args []string) error {
	conf := &_config.DagBFT
	logger := conf.Logger()

	c, err := committee.NewJSONCommitteeFile(conf.CommitteePath()).Committee()
	if err != nil {
		return fmt.Errorf("reading committee: %w", err)
	}

	source, err := dag.LoadBadgerStore(c, conf.CacheSize, conf.DatabaseDir, true, logger.WithField("prefix", "store"))
	if err != nil {
		return err
	}
	defer source.Close()

	persisted := []*dag.Commit{}
	for i := 0; i <= source.LastCommitIndex(); i++ {
		record, err := source.GetCommit(i)
		if err != nil {
			return err
		}
		persisted = append(persisted, record)
	}

	core, err := newCore(c, dag.NewInmemStore(c, conf.CacheSize), func(s *node.CommittedSubDag) error {
		fmt.Println(s)
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := node.Replay(source, core); err != nil {
		return err
	}

	replayed, err := core.CommitsSince(-1)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"highest_round": source.HighestAcceptedRound(),
		"persisted":     len(persisted),
		"replayed":      len(replayed),
		"last_decided":  core.LastDecided(),
	}).Debug("Replay")

	if err := node.CompareCommits(persisted, replayed); err != nil {
		return err
	}

	fmt.Printf("%d commits replayed, %d persisted, sequences agree\n", len(replayed), len(persisted))

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddReplayFlags adds flags to the Replay command
func AddReplayFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	AddCommitterFlags(cmd)
	AddStoreFlags(cmd)
}
