// Command lspcored is a minimal example LSP server binary: it wires
// lspsrv's session plumbing to os.Stdin/os.Stdout/os.Stderr and registers
// one illustrative demonstration handler. Real language servers are
// expected to vendor lspsrv the way this binary does, not to extend it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gopherlsp/lspcore/lspsrv"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "lspcored",
		Version: version,
		Usage:   "example language server built on lspcore",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the server over stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fcfg, err := loadFileConfig(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg := lspsrv.Config{
				Debug:         cmd.Bool("debug") || fcfg.Debug,
				In:            os.Stdin,
				Out:           os.Stdout,
				Err:           os.Stderr,
				IdleTimeoutMs: fcfg.IdleTimeoutMs,
			}
			if fcfg.MaxMessageBytes > 0 {
				cfg.FramerCapacity = fcfg.MaxMessageBytes
			}

			s, err := lspsrv.New(cfg)
			if err != nil {
				return fmt.Errorf("creating session: %w", err)
			}

			registerHover(s)

			s.WatchSignals()
			if err := s.Run(); err != nil {
				return cli.Exit(fmt.Sprintf("session terminated: %v", err), 1)
			}

			return nil
		},
	}
}
