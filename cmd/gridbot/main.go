package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gridbot/internal/alert"
	"gridbot/internal/bootstrap"
	"gridbot/internal/core"
	"gridbot/internal/engine"
	"gridbot/internal/exchange"
	"gridbot/internal/infrastructure/metrics"
	"gridbot/internal/ledger"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	paper := flag.Bool("paper", false, "trade against the simulated paper venue")
	flag.Parse()

	if err := run(*configPath, *paper); err != nil {
		fmt.Fprintf(os.Stderr, "gridbot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, paper bool) error {
	app, err := bootstrap.NewApp(configPath)
	if err != nil {
		return err
	}
	cfg := app.Cfg

	pairCfgs, err := cfg.PairConfigs()
	if err != nil {
		return err
	}

	var runners []bootstrap.Runner

	var venue core.Exchange
	if paper {
		pairs := make([]core.Pair, 0, len(pairCfgs))
		for _, pc := range pairCfgs {
			pairs = append(pairs, pc.Pair)
		}
		sim := exchange.NewPaper(pairs, decimal.RequireFromString("0.0006"), 2*time.Second)
		runners = append(runners, sim)
		venue = sim
		app.Logger.Warn("Paper trading mode: orders never reach a real venue")
	} else {
		// A live venue client plugs in here; until one is wired the
		// process refuses to start rather than trade into the void.
		return fmt.Errorf("no live venue client configured, run with -paper")
	}

	client := exchange.NewResilient(exchange.NewThrottled(venue, cfg.Exchange.RateLimit, cfg.Exchange.RateBurst))

	led, err := ledger.Open(cfg.System.DatabasePath)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer led.Close()

	alerts := alert.NewAlertManager(app.Logger)
	if token := cfg.Alerts.TelegramBotToken.Value(); token != "" {
		alerts.AddChannel(alert.NewTelegramChannel(token, cfg.Alerts.TelegramChatID))
	}
	if url := cfg.Alerts.SlackWebhookURL.Value(); url != "" {
		alerts.AddChannel(alert.NewSlackChannel(url))
	}

	eng, err := engine.New(cfg, client, led, alerts, app.Logger)
	if err != nil {
		return err
	}
	runners = append(runners, eng)

	if cfg.Telemetry.EnableMetrics {
		runners = append(runners, metrics.NewServer(cfg.Telemetry.MetricsPort, app.Logger))
	}

	return app.Run(runners...)
}
