package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/distributor"
)

func main() {
	app := &cli.App{
		Name:  "refund-builder",
		Usage: "Build the merkle commitment for a refund distribution",
		Description: `Reads an investor allocation table (JSON object mapping hex addresses to
decimal amount strings), builds the merkle commitment, and emits the root
plus a per-address inclusion proof.

The root goes into the refund ledger at creation; each proof is handed to
its investor for claiming. Building is deterministic: the same table always
produces the same root, regardless of entry order.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "allocations",
				Aliases:  []string{"a"},
				Usage:    "Path to the allocation table JSON file",
				Required: true,
			},
			&cli.UintFlag{
				Name:    "decimals",
				Aliases: []string{"d"},
				Value:   18,
				Usage:   "Fixed-point scale for amount parsing",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the commitment JSON to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "Emit only this address's proof entry",
			},
		},
		Action: runBuilder,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runBuilder(c *cli.Context) error {
	decimals := c.Uint("decimals")
	if decimals > 255 {
		return fmt.Errorf("decimals out of range: %d", decimals)
	}

	raw, err := os.ReadFile(c.String("allocations"))
	if err != nil {
		return fmt.Errorf("failed to read allocation table: %w", err)
	}

	var allocations map[string]string
	if err := json.Unmarshal(raw, &allocations); err != nil {
		return fmt.Errorf("failed to parse allocation table: %w", err)
	}

	commitment, err := distributor.BuildCommitment(allocations, uint8(decimals))
	if err != nil {
		return fmt.Errorf("failed to build commitment: %w", err)
	}

	var out interface{} = commitment
	if addr := c.String("address"); addr != "" {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address: %s", addr)
		}
		entry, ok := commitment.Proofs[common.HexToAddress(addr).Hex()]
		if !ok {
			return fmt.Errorf("address %s is not in the committed set", addr)
		}
		out = struct {
			Root    string                  `json:"root"`
			Address string                  `json:"address"`
			Entry   *distributor.ProofEntry `json:"entry"`
		}{commitment.Root, common.HexToAddress(addr).Hex(), entry}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode commitment: %w", err)
	}
	encoded = append(encoded, '\n')

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Printf("Commitment written to %s (root %s)\n", path, commitment.Root)
		return nil
	}

	_, err = os.Stdout.Write(encoded)
	return err
}
