package cmd

import (
	"fmt"
	"os"

	"bazaar-backend/lib/offers"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var minQualify int

func init() {
	offersCmd.Flags().IntVar(&minQualify, "min-qualify", 0,
		"Minimum number of offers required before a best offer is declared.")
	rootCmd.AddCommand(offersCmd)
}

var offersCmd = &cobra.Command{
	Use:   "offers <source> <code> [<source> <code>...]",
	Short: "Fetches and merges offers for a product across sources.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args)%2 != 0 {
			fmt.Fprintln(os.Stderr, "arguments must come in <source> <code> pairs")
			os.Exit(1)
		}

		productCodes := map[string]string{}
		for i := 0; i < len(args); i += 2 {
			productCodes[args[i]] = args[i+1]
		}

		result, err := service.FetchOffers(cmd.Context(), productCodes)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		for keyname, sourceErr := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", keyname, sourceErr.Error())
		}

		merged := result.Merged()
		renderOffers(merged)

		if minQualify > 0 {
			best, ok := offers.Best(merged, minQualify)
			if !ok {
				fmt.Println("no qualifying best offer")
				return
			}
			fmt.Printf("best: %s at %s (%s total)\n",
				best.MerchantName, best.Price.StringFixed(2), best.TotalPrice().StringFixed(2))
		}
	},
}

func renderOffers(list []offers.Offer) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Merchant", "Price", "Shipping", "Total", "Rating", "Available"})

	for _, offer := range list {
		shipping := "?"
		if offer.Shipping != nil {
			shipping = offer.Shipping.StringFixed(2)
		}
		rating := ""
		if offer.MerchantRating != nil {
			rating = fmt.Sprintf("%.0f%%", *offer.MerchantRating)
		}
		t.AppendRow(table.Row{
			offer.Source,
			offer.MerchantName,
			offer.Price.StringFixed(2),
			shipping,
			offer.TotalPrice().StringFixed(2),
			rating,
			offer.Available,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
