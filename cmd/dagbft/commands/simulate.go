package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/simulation"
)

var simConfig = simulation.DefaultConfig()

//NewSimulateCmd returns the command that runs a multi-validator simulation
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run committers over the views of a random DAG and check agreement",
		PreRunE: loadConfig,
		RunE:    simulate,
	}
	AddSimulateFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func simulate(cmd *cobra.Command, args []string) error {
	conf := &_config.DagBFT

	simConfig.WaveLength = dag.Round(conf.WaveLength)
	simConfig.NumberOfLeaders = conf.NumberOfLeaders
	simConfig.Pipeline = conf.Pipeline
	simConfig.Schedule = conf.Schedule
	simConfig.CacheSize = conf.CacheSize
	simConfig.ReputationScores = conf.ReputationScores
	simConfig.SwapStakeThreshold = conf.SwapStakeThreshold

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := simulation.Run(ctx, simConfig, conf.Logger().WithField("prefix", "simulation"))
	if err != nil {
		return err
	}

	fmt.Printf("committee=%d byzantine=%v blocks=%d\n", res.Committee.Size(), res.Byzantine, res.Blocks)
	for _, v := range res.Validators {
		committed, skipped := v.Counts()
		fmt.Printf("%v committed=%d skipped=%d\n", v, committed, skipped)
	}

	if err := res.CheckAgreement(); err != nil {
		fmt.Println("DISAGREEMENT")
		return err
	}
	fmt.Println("AGREEMENT")

	if conf.Store && len(res.Validators) > 0 {
		return persistView(res.Committee, res.Validators[0])
	}

	return nil
}

// persistView writes the committee file and commits the view of a validator
// into a new badger database, for the replay command.
func persistView(c *committee.Committee, v *simulation.Validator) error {
	conf := &_config.DagBFT
	logger := conf.Logger()

	if _, err := os.Stat(conf.DatabaseDir); err == nil {
		return fmt.Errorf("a database already lives under: %s", conf.DatabaseDir)
	}

	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return err
	}

	if err := committee.NewJSONCommitteeFile(conf.CommitteePath()).Write(c); err != nil {
		return fmt.Errorf("writing committee: %w", err)
	}

	store, err := dag.NewBadgerStore(c, conf.CacheSize, conf.DatabaseDir, logger.WithField("prefix", "store"))
	if err != nil {
		return err
	}
	defer store.Close()

	core, err := newCore(c, store, nil)
	if err != nil {
		return err
	}

	if err := core.AddBlocks(v.View); err != nil {
		return err
	}

	if _, err := core.TryCommit(); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"validator":    v.Authority,
		"blocks":       v.Blocks,
		"commits":      store.LastCommitIndex() + 1,
		"last_decided": core.LastDecided(),
		"db":           conf.DatabaseDir,
		"committee":    conf.CommitteePath(),
	}).Info("Persisted view")

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	AddCommitterFlags(cmd)
	AddStoreFlags(cmd)

	cmd.Flags().IntVar(&simConfig.CommitteeSize, "committee-size", simConfig.CommitteeSize, "Number of equal-stake authorities")
	cmd.Flags().IntVar(&simConfig.Byzantine, "byzantine", simConfig.Byzantine, "Number of equivocating authorities")
	cmd.Flags().Uint32Var((*uint32)(&simConfig.Rounds), "rounds", uint32(simConfig.Rounds), "Number of rounds of the DAG")
	cmd.Flags().Uint64Var(&simConfig.Seed, "seed", simConfig.Seed, "Random seed")
	cmd.Flags().Float64Var(&simConfig.LinkProbability, "link-probability", simConfig.LinkProbability, "Probability for an honest block to link to each block of the previous round")
}
