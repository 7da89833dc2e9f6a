package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"local-api-gateway/internal/config"
	"local-api-gateway/internal/gateway"
	"local-api-gateway/internal/invoker"
	"local-api-gateway/internal/router"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Local HTTP API gateway that routes requests to functions in Docker sandboxes",
	Long: `Web server that handles HTTP API requests and routes them to functions
running inside per-request Docker sandboxes, based on a serverless
configuration file.

Function source code is expected at "<functions dir>/<function name>/<handler file>[.py|.js]".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("functions", "f", config.DefaultFunctionsDir, "base directory where function sources are located")
	flags.IntP("port", "p", config.DefaultPort, "port the server listens on for API calls")
	flags.String("host", config.DefaultHost, "address the server binds to")
	flags.StringP("sls", "s", config.DefaultConfigFile, "serverless configuration file path")
	flags.StringP("env", "e", "", "file with environment variables passed to every function")
	flags.StringP("layer", "l", "", "directory mounted as the functions' shared layer")
	flags.StringP("network", "n", "", "Docker network the sandboxes are created in")
	flags.Float64("throttle-rps", 0, "requests per second before throttling kicks in (0 disables)")
	flags.Int("throttle-burst", 1, "burst size allowed when throttling is enabled")
	flags.BoolP("verbose", "v", false, "enable verbose output")

	bindings := map[string]string{
		"FUNCTIONS":      "functions",
		"PORT":           "port",
		"HOST":           "host",
		"SLS":            "sls",
		"ENV":            "env",
		"LAYER":          "layer",
		"NETWORK":        "network",
		"THROTTLE_RPS":   "throttle-rps",
		"THROTTLE_BURST": "throttle-burst",
		"VERBOSE":        "verbose",
	}
	for key, flag := range bindings {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if info, err := os.Stat(cfg.FunctionsDir); err != nil || !info.IsDir() {
		return fmt.Errorf("functions directory not found: '%s'", cfg.FunctionsDir)
	}
	if cfg.LayerDir != "" {
		if info, err := os.Stat(cfg.LayerDir); err != nil || !info.IsDir() {
			return fmt.Errorf("invalid layer directory: '%s'", cfg.LayerDir)
		}
	}

	environment, err := config.LoadEnvironment(cfg.EnvFile)
	if err != nil {
		return err
	}

	logrus.WithField("config", cfg.ConfigFile).Info("Loading endpoints")
	routes, err := config.LoadEndpoints(cfg.ConfigFile, cfg.FunctionsDir)
	if err != nil {
		return err
	}

	// Docker daemon preflight
	executor, err := invoker.NewDockerExecutor()
	if err != nil {
		return fmt.Errorf("connecting to Docker: %w", err)
	}
	defer executor.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := executor.Ping(pingCtx); err != nil {
		return fmt.Errorf("Docker daemon is not reachable, is it running? %w", err)
	}

	inv, err := invoker.New(executor, invoker.Options{
		Environment: environment,
		LayerDir:    cfg.LayerDir,
		Network:     cfg.Network,
	})
	if err != nil {
		return err
	}

	rt := router.New(inv)
	if err := rt.Register(routes); err != nil {
		return err
	}

	gw := gateway.New(rt, gateway.Options{
		ThrottleRPS:   cfg.ThrottleRPS,
		ThrottleBurst: cfg.ThrottleBurst,
	})
	gw.LogEndpoints(cfg.Addr())

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: gw.Handler(),
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logrus.WithField("addr", cfg.Addr()).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logrus.Info("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrus.Info("Server exited")
	return nil
}
