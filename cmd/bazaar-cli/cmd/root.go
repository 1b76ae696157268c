package cmd

import (
	"context"
	"fmt"
	"os"

	"bazaar-backend/lib/configutil"
	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"
	offersvc "bazaar-backend/services/offers"

	"github.com/spf13/cobra"
)

var registry *sources.Registry
var service *offersvc.Service

type config struct {
	Cache   respcache.Config       `json:"cache"`
	Sources offersvc.SourcesConfig `json:"sources"`
}

var rootCmd = &cobra.Command{
	Use:   "bazaar-cli",
	Short: "bazaar-cli drives the offer aggregation pipeline from the command line.",
}

func fatal(message string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", message, err.Error())
	os.Exit(1)
}

func Execute() {
	verbose := os.Getenv("BAZAAR_VERBOSE") != ""
	telemetry.InitSlog(verbose)
	telemetry.SetupFromEnv(context.Background(), "bazaar-cli")

	cfg, err := configutil.ReadConfig[config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		fatal("read config", err)
	}

	registry, err = sources.LoadRegistry("sources.json5")
	if err != nil {
		fatal("load source registry", err)
	}
	cache, err := respcache.Open(cfg.Cache)
	if err != nil {
		fatal("open response cache", err)
	}
	service, err = offersvc.Bootstrap(
		sources.NewPipelineContext(registry, cache),
		cfg.Sources,
	)
	if err != nil {
		fatal("bootstrap sources", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
