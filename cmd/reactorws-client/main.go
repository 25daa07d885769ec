// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goschtalt/goschtalt"
	"github.com/xmidt-org/sallust"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/reactorws/reactorws/internal/auth"
	"github.com/reactorws/reactorws/internal/reactor"
	"github.com/reactorws/reactorws/internal/wsconn"
)

const applicationName = "reactorws-client"

var (
	commit  = "undefined"
	version = "undefined"
	date    = "undefined"
	builtBy = "undefined"
)

// CLI is the structure that is used to capture the command line arguments.
type CLI struct {
	Dev   bool     `optional:"" short:"d" help:"Run in development mode."`
	Show  bool     `optional:"" short:"s" help:"Show the configuration and exit."`
	Graph string   `optional:"" short:"g" help:"Output the dependency graph to the specified file."`
	Files []string `optional:"" short:"f" help:"Specific configuration files or directories."`
}

type LifeCycleIn struct {
	fx.In
	Logger *zap.Logger
	LC     fx.Lifecycle
	Base   *reactor.Base
	Client *wsconn.Client
	Auth   *auth.Auth
}

func reactorwsClient(args []string) (*fx.App, error) {
	var (
		gscfg *goschtalt.Config
		g     fx.DotGraph
		cli   *CLI
	)

	app := fx.New(
		fx.Supply(cliArgs(args)),
		fx.Populate(&g),
		fx.Populate(&gscfg),
		fx.Populate(&cli),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),

		fx.Provide(
			provideCLI,
			provideLogger,
			provideConfig,
			provideBase,
			provideAuth,
			provideClient,

			goschtalt.UnmarshalFunc[Connect]("connect"),
			goschtalt.UnmarshalFunc[Session]("session"),
			goschtalt.UnmarshalFunc[Auth]("auth"),
			goschtalt.UnmarshalFunc[sallust.Config]("logger", goschtalt.Optional()),
		),

		fx.Invoke(
			wireHandlers,
			lifeCycle,
		),
	)

	if cli != nil && cli.Graph != "" {
		_ = os.WriteFile(cli.Graph, []byte(g), 0600)
	}

	if err := app.Err(); err != nil {
		return nil, err
	}

	return app, nil
}

func main() {
	app, err := reactorwsClient(os.Args[1:])
	if err == nil {
		app.Run()
		return
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(-1)
}

type cliArgs []string

func provideCLI(args cliArgs) (*CLI, error) {
	return provideCLIWithOpts(args, false)
}

func provideCLIWithOpts(args cliArgs, testOpts bool) (*CLI, error) {
	var cli CLI

	var opt kong.Option = kong.OptionFunc(func(*kong.Kong) error { return nil })
	if testOpts {
		opt = kong.Writers(nil, nil)
	}

	parser, err := kong.New(&cli,
		kong.Name(applicationName),
		kong.Description("A Websocket client built on a portable I/O reactor.\n"+
			fmt.Sprintf("\tVersion:  %s\n", version)+
			fmt.Sprintf("\tDate:     %s\n", date)+
			fmt.Sprintf("\tCommit:   %s\n", commit)+
			fmt.Sprintf("\tBuilt By: %s\n", builtBy),
		),
		kong.UsageOnError(),
		opt,
	)
	if err != nil {
		return nil, err
	}

	if testOpts {
		parser.Exit = func(_ int) { panic("exit") }
	}

	if _, err := parser.Parse(args); err != nil {
		parser.FatalIfErrorf(err)
	}

	return &cli, nil
}

func lifeCycle(in LifeCycleIn) {
	logger := in.Logger.Named("fx_lifecycle")
	in.LC.Append(fx.Hook{
		OnStart: onStart(in.Base, in.Client, in.Auth, logger),
		OnStop:  onStop(in.Base, in.Client, in.Auth, logger),
	})
}

func onStart(base *reactor.Base, client *wsconn.Client, a *auth.Auth, logger *zap.Logger) func(context.Context) error {
	logger = logger.Named("on_start")
	return func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stacktrace from panic", zap.String("stacktrace", string(debug.Stack())), zap.Any("panic", r))
			}
		}()

		base.Start()

		if a != nil {
			a.Start()
			waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			a.WaitUntilFetched(waitCtx)
		}

		client.Start()
		return nil
	}
}

func onStop(base *reactor.Base, client *wsconn.Client, a *auth.Auth, logger *zap.Logger) func(context.Context) error {
	logger = logger.Named("on_stop")
	return func(_ context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stacktrace from panic", zap.String("stacktrace", string(debug.Stack())), zap.Any("panic", r))
			}
		}()

		client.Stop()
		if a != nil {
			a.Stop()
		}
		base.Stop()
		return base.Close()
	}
}
