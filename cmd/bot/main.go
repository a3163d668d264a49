// Command bot runs filler agents that keep the grid royale queue populated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/logging"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	flags := pflag.NewFlagSet("bot", pflag.ExitOnError)
	configDir := flags.String("config", ".", "directory containing "+config.FileName)
	flags.String("server", "http://localhost:8080", "grid royale server URL")
	flags.Int("count", 2, "number of bots to run")
	flags.String("prefix", "filler", "bot name prefix")
	_ = flags.Parse(os.Args[1:])
	_ = viper.BindPFlag("bot.serverUrl", flags.Lookup("server"))
	_ = viper.BindPFlag("bot.count", flags.Lookup("count"))
	_ = viper.BindPFlag("bot.namePrefix", flags.Lookup("prefix"))

	configErr := config.Load(*configDir)
	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, viper.GetString("logLevel"), nil, nil)
	logger := slogManager.Logger()
	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	}

	botCfg := config.GetBotConfig()
	if botCfg.Count < 1 {
		fmt.Fprintln(os.Stderr, "bot: count must be at least 1")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := uint64(time.Now().UnixNano())
	var wg sync.WaitGroup
	for i := range botCfg.Count {
		name := fmt.Sprintf("%s-%d", botCfg.NamePrefix, i+1)
		bot := NewBot(botCfg.ServerURL, name, botCfg.PollInterval, seed+uint64(i), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				logger.Error("Bot stopped", "bot", name, "error", err)
			}
		}()
	}

	logger.Info("Bots running", "count", botCfg.Count, "server", botCfg.ServerURL)
	wg.Wait()
}
