package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/client"
	"github.com/motionforge/renderline/internal/config"
	"github.com/motionforge/renderline/internal/logging"
	"github.com/motionforge/renderline/internal/wire"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "renderline-watch",
		Short: "Watch a user's render job events from the terminal",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("endpoint", defaults.GetString("channel.endpoint"), "Channel endpoint URL (ws://host/ws)")
	cmd.PersistentFlags().String("token", "", "Channel token (overrides env)")
	cmd.PersistentFlags().String("user", "watcher", "User id reported on the session")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "channel.endpoint", "endpoint")
	bindFlag(cmd, "channel.token", "token")
	bindFlag(cmd, "channel.user", "user")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runWatcher(ctx context.Context) error {
	appConfig, err := config.LoadWatch(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	bus := client.NewEventBus()
	manager, err := client.NewManager(client.ManagerConfig{
		Endpoint: appConfig.Endpoint,
		Dialer:   client.NewWebsocketDialer(),
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	gate := client.NewSessionGate(manager)

	center, err := client.NewNotificationCenter(client.NotificationCenterConfig{
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer center.Close()

	bus.SubscribeState(func(state client.ConnectionState) {
		logger.Info("channel state", zap.String("state", string(state)))
	})
	bus.SubscribeEvents(func(event wire.JobEvent) {
		if event.Failed() {
			fmt.Printf("FAIL  %s/%s: %s\n", event.SourceType, event.SourceID, event.Detail)
			return
		}
		fmt.Printf("DONE  %s/%s: %s\n", event.SourceType, event.SourceID, event.VideoURL)
	})

	gate.SignIn(client.StaticPrincipal{
		ID:    viper.GetString("channel.user"),
		Value: appConfig.Token,
	})
	defer gate.SignOut()

	if appConfig.Endpoint == "" {
		logger.Warn("no channel endpoint configured; waiting idle")
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()
	return nil
}
