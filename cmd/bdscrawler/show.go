package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/julianbeese/bds_crawler/internal/domain"
)

var showOptions = []string{"direction", "city", "price-sell", "price-rent", "area"}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "show <direction|city|price-sell|price-rent|area>",
		Short:     "Show the option codes accepted by crawl",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: showOptions,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			printOptions(cmd, optionMap(engine.Options(), args[0]))
			return nil
		},
	}
}

func optionMap(opts *domain.Options, name string) domain.OptionMap {
	switch name {
	case "direction":
		return opts.Directions
	case "city":
		return opts.Cities
	case "price-sell":
		return opts.PriceSell
	case "price-rent":
		return opts.PriceRent
	case "area":
		return opts.Areas
	}
	return nil
}

func printOptions(cmd *cobra.Command, m domain.OptionMap) {
	for _, code := range m.SortedKeys() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-4s: %s\n", code, m[code])
	}
}
