package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bftbank/core/internal/logger"
	"github.com/bftbank/core/internal/observability"
	"github.com/bftbank/core/ledger/bank"
	"github.com/bftbank/core/peer"
)

// shutdownTimeout bounds how long the registry subcommand's graceful HTTP
// server close is allowed to take before the process exits anyway. A peer
// node's deregister on shutdown has its own timeout in peer.Node.Run.
const shutdownTimeout = 5 * time.Second

// nodeFlags are the flags shared by any subcommand that constructs and
// runs a peer.Node (run, menu).
type nodeFlags struct {
	ID           string
	Addr         string
	RegistryURL  string
	Seeds        []string
	LogFormat    string
	VerifyWindow time.Duration
	LearnWindow  time.Duration
}

func (f *nodeFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ID, "id", "", "this node's id (required)")
	cmd.Flags().StringVar(&f.Addr, "addr", "", "this node's base address, host:port (required)")
	cmd.Flags().StringVar(&f.RegistryURL, "registry", "http://127.0.0.1:5000", "registry base URL")
	cmd.Flags().StringSliceVar(&f.Seeds, "seed", nil, "known peer as id=host:port, repeatable")
	cmd.Flags().StringVar(&f.LogFormat, "log-format", "text", "log output format: text|json")
	cmd.Flags().DurationVar(&f.VerifyWindow, "verify-window", 0, "override the cross-verification collection window (0 keeps the default)")
	cmd.Flags().DurationVar(&f.LearnWindow, "learn-window", 0, "override the learn collection window (0 keeps the default)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("addr")
}

func (f *nodeFlags) seedPeers() ([]peer.PeerSeed, error) {
	seeds := make([]peer.PeerSeed, 0, len(f.Seeds))
	for _, s := range f.Seeds {
		id, url, ok := strings.Cut(s, "=")
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("cmd: malformed --seed %q, want id=host:port", s)
		}
		seeds = append(seeds, peer.PeerSeed{ID: id, URL: url})
	}
	return seeds, nil
}

func (f *nodeFlags) newNode() (*peer.Node, error) {
	log := logger.New(nil, slog.LevelInfo, f.LogFormat == "json").With(logger.NodeID(f.ID))
	obs := observability.WithLogger(observability.Default(), log)

	seeds, err := f.seedPeers()
	if err != nil {
		return nil, err
	}

	opts := []peer.Option{peer.WithObservability(obs), peer.WithSeedPeers(seeds...)}
	if f.VerifyWindow > 0 {
		opts = append(opts, peer.WithVerifyWindow(f.VerifyWindow))
	}
	if f.LearnWindow > 0 {
		opts = append(opts, peer.WithLearnWindow(f.LearnWindow))
	}

	conf, err := peer.NewNodeConf(f.ID, f.Addr, f.RegistryURL, bank.New(), bank.NewState(), opts...)
	if err != nil {
		return nil, err
	}
	return peer.NewNode(conf)
}
