package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bftbank/core/internal/wire"
	"github.com/bftbank/core/ledger/bank"
)

func menuCmd() *cobra.Command {
	flags := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Starts a peer node and the operator's interactive menu",
		Long:  "Joins the cluster like run, then reads five numeric choices from stdin to inject client requests (spec §6): create account, deposit, withdraw, check balance, exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := flags.newNode()
			if err != nil {
				return fmt.Errorf("cmd: build node: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			nodeErrCh := make(chan error, 1)
			go func() { nodeErrCh <- node.Run(ctx) }()

			runMenu(ctx, cmd, node)
			cancel()
			return <-nodeErrCh
		},
	}
	flags.addFlags(cmd)
	return cmd
}

// nodeOperator is the subset of *peer.Node the menu drives, narrowed so
// the REPL loop can be exercised with a fake in tests.
type nodeOperator interface {
	Propose(ctx context.Context, cmd wire.Action) error
	Query(name string) (any, error)
}

func runMenu(ctx context.Context, cmd *cobra.Command, node nodeOperator) {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		fmt.Fprint(out, "\n1) Create account\n2) Deposit\n3) Withdraw\n4) Check balance\n5) Exit\nEnter your choice: ")
		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			name := prompt(out, scanner, "Enter account holder's name: ")
			initial := promptFloat(out, scanner, "Enter initial balance: ")
			err := node.Propose(ctx, wire.Action{
				"action": bank.ActionCreateAccount, "name": name, "initial_balance": initial,
			})
			reportResult(out, err)
		case "2":
			name := prompt(out, scanner, "Enter account holder's name: ")
			amount := promptFloat(out, scanner, "Enter amount to deposit: ")
			err := node.Propose(ctx, wire.Action{
				"action": bank.ActionDeposit, "name": name, "amount": amount,
			})
			reportResult(out, err)
		case "3":
			name := prompt(out, scanner, "Enter account holder's name: ")
			amount := promptFloat(out, scanner, "Enter amount to withdraw: ")
			err := node.Propose(ctx, wire.Action{
				"action": bank.ActionWithdraw, "name": name, "amount": amount,
			})
			reportResult(out, err)
		case "4":
			name := prompt(out, scanner, "Enter account holder's name: ")
			balance, err := node.Query(name)
			if err != nil {
				fmt.Fprintf(out, "Check failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Balance for %s: %v\n", name, balance)
		case "5":
			return
		default:
			fmt.Fprintln(out, "Invalid choice.")
		}
	}
}

func reportResult(out interface{ Write([]byte) (int, error) }, err error) {
	if err != nil {
		fmt.Fprintf(out, "Request rejected: %v\n", err)
		return
	}
	fmt.Fprintln(out, "Request committed.")
}

func prompt(out interface{ Write([]byte) (int, error) }, scanner *bufio.Scanner, label string) string {
	fmt.Fprint(out, label)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func promptFloat(out interface{ Write([]byte) (int, error) }, scanner *bufio.Scanner, label string) float64 {
	text := prompt(out, scanner, label)
	amount, _ := strconv.ParseFloat(text, 64)
	return amount
}
