package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gigescrow/internal/escrow"
)

var tradeFlags struct {
	seller      string
	assetID     uint64
	assetAmount uint64
	price       string
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, addressCmd} {
		c.Flags().StringVar(&tradeFlags.seller, "seller", "", "seller address")
		c.Flags().Uint64Var(&tradeFlags.assetID, "asset-id", 0, "asset id, 0 for the native currency")
		c.Flags().Uint64Var(&tradeFlags.assetAmount, "asset-amount", 1, "asset units delivered to the buyer")
		c.Flags().StringVar(&tradeFlags.price, "price", "", "price in display units, e.g. 12.5")
		_ = c.MarkFlagRequired("seller")
		_ = c.MarkFlagRequired("price")
		RootCmd.AddCommand(c)
	}
}

func flagTrade() (escrow.Trade, error) {
	price, err := escrow.ToMinorUnits(tradeFlags.price, conf.Chain.AssetDecimals)
	if err != nil {
		return escrow.Trade{}, err
	}
	return escrow.Trade{
		AssetID:         tradeFlags.assetID,
		SellerAddress:   tradeFlags.seller,
		PriceMinorUnits: price,
		AssetAmount:     tradeFlags.assetAmount,
	}, nil
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the escrow program for a trade",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := flagTrade()
		if err != nil {
			return err
		}
		source, err := escrow.Render(t)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), source)
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Compile the escrow program for a trade and print its address",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := flagTrade()
		if err != nil {
			return err
		}
		ledger, _, err := newLedger(conf)
		if err != nil {
			return err
		}
		program, err := escrow.RenderAndCompile(cmd.Context(), ledger, t)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), program.Address)
		return nil
	},
}
