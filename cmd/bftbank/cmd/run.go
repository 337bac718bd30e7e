package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bftbank/core/internal/logger"
)

func runCmd() *cobra.Command {
	flags := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Starts a peer node",
		Long:  "Joins the cluster through the registry and serves the protocol, verify, learn and directory listeners until terminated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := flags.newNode()
			if err != nil {
				return fmt.Errorf("cmd: build node: %w", err)
			}
			log := logger.New(nil, slog.LevelInfo, flags.LogFormat == "json")
			log.InfoContext(cmd.Context(), "starting peer node", logger.NodeID(flags.ID))
			return node.Run(cmd.Context())
		},
	}
	flags.addFlags(cmd)
	return cmd
}
