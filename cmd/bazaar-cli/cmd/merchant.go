package cmd

import (
	"fmt"
	"os"

	"bazaar-backend/lib/offers"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	merchantSearchCmd.Flags().IntVar(&searchLimit, "limit", 10,
		"Maximum number of search results.")
	merchantCmd.AddCommand(merchantFetchCmd)
	merchantCmd.AddCommand(merchantSearchCmd)
	rootCmd.AddCommand(merchantCmd)
}

var merchantCmd = &cobra.Command{
	Use:   "merchant",
	Short: "Merchant reputation lookups.",
}

var merchantFetchCmd = &cobra.Command{
	Use:   "fetch <source> <code-or-url>",
	Short: "Fetches a merchant reputation profile from one source.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		profile, err := service.FetchMerchantProfile(cmd.Context(), args[0], args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		renderProfiles([]offers.MerchantProfile{profile})
	},
}

var merchantSearchCmd = &cobra.Command{
	Use:   "search <source> <query>",
	Short: "Searches a source for merchants by name.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		profiles, err := service.SearchMerchants(cmd.Context(), args[0], args[1], searchLimit)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		renderProfiles(profiles)
	},
}

func renderProfiles(profiles []offers.MerchantProfile) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Code", "Alt Code", "Name", "Rating", "Reviews", "Homepage"})

	for _, p := range profiles {
		rating := ""
		if p.HasRating() {
			rating = fmt.Sprintf("%.0f%%", p.Rating)
		}
		t.AppendRow(table.Row{
			p.Source, p.Code, p.AltCode, p.Name, rating, p.NumReviews, p.Homepage,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
