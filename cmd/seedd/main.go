package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/telemetry"
	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
	"github.com/gossipmesh/gossipmesh/pkg/registry"
	"github.com/gossipmesh/gossipmesh/pkg/util"
	"github.com/gossipmesh/gossipmesh/pkg/web"
)

const (
	// ParamVerbose turns on debug logging.
	ParamVerbose = "verbose"
	// ParamJSON switches log output to JSON.
	ParamJSON = "json"
	// ParamConfigPath points at an optional configuration file.
	ParamConfigPath = "config-path"
	// ParamVersion prints version information and exits.
	ParamVersion = "version"
)

var (
	// BuildDate is the date when the binary was built.
	BuildDate string
	// GitCommit is the commit hash when the binary was built.
	GitCommit string
	// Version is the version of the binary.
	Version string
)

func main() {
	rand.Seed(time.Now().UnixNano())
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Configuration error: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logger := logrus.StandardLogger()
	logger.Info("Starting seed registry")
	telemetry.SetBuildInfo(Version, GitCommit)

	server, err := registry.NewServer(
		logger,
		v.GetString(gossipmesh.ParamListenAddr),
		v.GetInt(gossipmesh.ParamMaxConns),
		v.GetFloat64(gossipmesh.ParamBadFramesPerMinute),
	)
	if err != nil {
		return err
	}

	var runnables []gossipmesh.Runnable
	if v.GetString(gossipmesh.ParamStatusAddr) != "" {
		var selfChecks, meshChecks []healthcheck.Check
		selfChecks, meshChecks = healthcheck.Collect(selfChecks, meshChecks, server)
		statusServer, err := web.NewStatusServerFromViper(
			logger,
			v,
			"seedd",
			nil,
			server.Registry(),
			nil,
			selfChecks,
			meshChecks,
		)
		if err != nil {
			return err
		}
		runnables = gossipmesh.MaybeAppendRunnable(runnables, statusServer)
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	var wg wait.Group
	defer wg.Wait()
	for _, r := range runnables {
		wg.StartWithContext(ctx, r)
	}

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v)

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose logging")
	cmd.Bool(ParamJSON, false, "Log in JSON")
	cmd.String(ParamConfigPath, "", "Path to a configuration file")

	cmd.String(gossipmesh.ParamListenAddr, gossipmesh.DefaultSeedListenAddr, "Address to accept nodes on")
	cmd.Int(gossipmesh.ParamMaxConns, gossipmesh.DefaultMaxConns, "Maximum concurrent connections (0 for unlimited)")
	gossipmesh.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
