package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/election-coordinator/pkg/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	log              = logrus.New()
	serverConfigFile string

	// Flag overrides for the most common election knobs.
	electionKey     string
	nodeID          string
	backend         string
	ttl             time.Duration
	renewalInterval time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "election-coordinator",
	Short: "Runs the leader election coordinator.",
	Long:  `Runs the leader election coordinator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initCommon()

		return runServer(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverConfigFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().StringVar(&electionKey, "election-key", "", "election key to compete for (overrides config)")
	rootCmd.Flags().StringVar(&nodeID, "node-id", "", "candidate identity (overrides config)")
	rootCmd.Flags().StringVar(&backend, "backend", "", "lease backend: redis, consul or etcd (overrides config)")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "lease time-to-live (overrides config)")
	rootCmd.Flags().DurationVar(&renewalInterval, "renewal-interval", 0, "lease renewal interval (overrides config)")
}

func initCommon() {

}

func runServer(ctx context.Context) error {
	config, err := loadServerConfigFromFile(serverConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	applyFlagOverrides(config)

	level, err := logrus.ParseLevel(config.LoggingLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid logging level, using info")

		level = logrus.InfoLevel
	}

	log.SetLevel(level)

	srv, err := server.NewServer(ctx, log, config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	log.Info("Election coordinator exited - cya!")

	return nil
}

func applyFlagOverrides(config *server.Config) {
	if electionKey != "" {
		config.Election.Key = electionKey
	}

	if nodeID != "" {
		config.Election.NodeID = nodeID
	}

	if backend != "" {
		config.Backend = backend
	}

	if ttl > 0 {
		config.Election.TTL = ttl
	}

	if renewalInterval > 0 {
		config.Election.RenewalInterval = renewalInterval
	}
}

func loadServerConfigFromFile(file string) (*server.Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &server.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	type plain server.Config

	if err := yaml.Unmarshal(yamlFile, (*plain)(config)); err != nil {
		return nil, err
	}

	return config, nil
}
