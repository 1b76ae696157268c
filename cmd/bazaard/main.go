package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"bazaar-backend/lib/configutil"
	"bazaar-backend/lib/respcache"
	"bazaar-backend/lib/sources"
	"bazaar-backend/lib/telemetry"
	"bazaar-backend/lib/util/serviceutil"
	offersvc "bazaar-backend/services/offers"
)

type Config struct {
	Port    int                    `json:"port"`
	Cache   respcache.Config       `json:"cache"`
	Sources offersvc.SourcesConfig `json:"sources"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(*verbose)
	t, err := telemetry.SetupFromEnv(ctx, "bazaard")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if config.Port == 0 {
		config.Port = 8321
	}

	registry, err := sources.LoadRegistry("sources.json5")
	if err != nil {
		serviceutil.Fatal("load source registry", err)
	}
	cache, err := respcache.Open(config.Cache)
	if err != nil {
		serviceutil.Fatal("open response cache", err)
	}

	service, err := offersvc.Bootstrap(
		sources.NewPipelineContext(registry, cache),
		config.Sources,
	)
	if err != nil {
		serviceutil.Fatal("bootstrap sources", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, registry, service)

	go serviceutil.StartHttpServer(config.Port, mux)
	<-ctx.Done()
}
