package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/dagbft/src/committee"
	"github.com/mosaicnetworks/dagbft/src/crypto/keys"
	"github.com/mosaicnetworks/dagbft/src/dag"
	"github.com/mosaicnetworks/dagbft/src/node"
	"github.com/mosaicnetworks/dagbft/src/service"
)

//NewRunCmd returns the command that starts a dagbft node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a node over the database and serve its state",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	conf := &_config.DagBFT
	logger := conf.Logger()

	c, err := committee.NewJSONCommitteeFile(conf.CommitteePath()).Committee()
	if err != nil {
		return fmt.Errorf("reading committee: %w", err)
	}

	store, err := newStore(c)
	if err != nil {
		return err
	}

	validator, err := loadValidator()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	conf.Registerer = registry

	n, err := node.NewNode(conf, validator, c, store, func(s *node.CommittedSubDag) error {
		logger.WithFields(logrus.Fields{
			"index":        s.Index,
			"leader":       s.Leader.Reference(),
			"blocks":       len(s.Blocks),
			"transactions": len(s.Transactions()),
		}).Info("Committed")
		return nil
	})
	if err != nil {
		store.Close()
		return err
	}

	if err := n.Init(); err != nil {
		n.Shutdown()
		return fmt.Errorf("initializing node: %w", err)
	}

	serviceServer := service.NewService(conf.ServiceAddr, n, registry, logger.WithField("prefix", "service"))
	go serviceServer.Serve()

	n.RunAsync()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh

	n.Shutdown()

	return nil
}

func newStore(c *committee.Committee) (dag.Store, error) {
	conf := &_config.DagBFT
	logger := conf.Logger().WithField("prefix", "store")

	if !conf.Store {
		return dag.NewInmemStore(c, conf.CacheSize), nil
	}

	if conf.MaintenanceMode {
		return dag.LoadBadgerStore(c, conf.CacheSize, conf.DatabaseDir, true, logger)
	}

	return dag.LoadOrCreateBadgerStore(c, conf.CacheSize, conf.DatabaseDir, logger)
}

// loadValidator reads the private key of the validator. Without a key file,
// the node runs as an observer.
func loadValidator() (*node.Validator, error) {
	conf := &_config.DagBFT

	if _, err := os.Stat(conf.Keyfile()); os.IsNotExist(err) {
		conf.Logger().WithField("keyfile", conf.Keyfile()).Info("No key, running as observer")
		return nil, nil
	}

	key, err := keys.NewSimpleKeyfile(conf.Keyfile()).ReadKey()
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}

	return node.NewValidator(key, conf.Moniker), nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	AddCommitterFlags(cmd)
	AddStoreFlags(cmd)

	cmd.Flags().Bool("maintenance-mode", _config.DagBFT.MaintenanceMode, "Start in suspended mode")
	cmd.Flags().Duration("commit-interval", _config.DagBFT.CommitInterval, "Time between commit attempts")
	cmd.Flags().StringP("service-listen", "s", _config.DagBFT.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().String("metrics-namespace", _config.DagBFT.MetricsNamespace, "Namespace of the prometheus metrics")
}
