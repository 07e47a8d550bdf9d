package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/pkg/service"
	"github.com/epoxyrpc/epoxy/pkg/transport"
	"github.com/tzrikka/xdg"
)

const (
	ConfigDirName  = "epoxyd"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "epoxyd",
		Usage:   "standalone Epoxy server: binds a listener and echoes requests back to demonstrate the transport",
		Version: bi.Main.Version,
		Flags:   flags(configFile()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			initLog(cmd.Bool("pretty-log"))
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := service.NewRegistry()
	registry.Add("echo", func(_ context.Context, req service.Request) (service.Response, error) {
		return service.OK(req.Payload), nil
	})

	tr := transport.NewTransportBuilder().Build()
	ln, err := tr.MakeListener(cmd.String("listen-address"), registry)
	if err != nil {
		return fmt.Errorf("failed to bind listener: %w", err)
	}

	ln.OnDisconnected(func(c *transport.Connection, err error) {
		logger.Log(ctx, logger.Debug, "connection closed", "remote", c.RemoteEndPoint(), "error", err)
	})

	ln.Start(ctx)
	logger.Log(ctx, logger.Information, "epoxyd listening", "address", ln.ListenEndpoint().String())

	<-ctx.Done()
	logger.Log(ctx, logger.Information, "epoxyd shutting down")
	ln.Stop()
	return nil
}

// configFile returns the path to the daemon's configuration file. It also
// creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.Log(context.Background(), logger.Fatal, "failed to create config file", "error", err)
		os.Exit(1)
	}
	return altsrc.StringSourcer(path)
}

// initLog installs the process-wide zerolog handler, switching between a
// pretty console writer and structured JSON output.
func initLog(pretty bool) {
	var w zerolog.ConsoleWriter
	var l zerolog.Logger
	if pretty {
		out := colorable.NewColorable(os.Stdout)
		w = zerolog.ConsoleWriter{Out: out, NoColor: !isatty.IsTerminal(os.Stdout.Fd())}
		l = zerolog.New(w).With().Timestamp().Caller().Logger()
	} else {
		l = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
	}

	if err := logger.SetHandler(&l); err != nil {
		fmt.Printf("Error: failed to install log handler: %v\n", err)
		os.Exit(1)
	}
}
