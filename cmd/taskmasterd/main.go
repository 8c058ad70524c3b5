package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/taskmaster/pkg/logging"
	"github.com/core-tools/taskmaster/pkg/shell"
	"github.com/core-tools/taskmaster/pkg/supervisor"
)

type flagOptions struct {
	ConfigFile string `short:"c" long:"config" description:"path to the taskmaster configuration file" default:"taskmaster.conf"`
	LogFile    string `long:"logfile" description:"path to the event log file" default:"taskmaster.log"`
	Console    bool   `long:"console" description:"also log to stdout"`
	Debug      bool   `long:"debug" description:"enable debug-level logging"`
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.NewZapLogger(logging.ZapOptions{
		LogFile: opts.LogFile,
		Console: opts.Console,
		Debug:   opts.Debug,
	})
	if err != nil {
		fmt.Printf("failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	logger.Infof("taskmasterd starting, config: %s", opts.ConfigFile)

	sup, err := supervisor.New(opts.ConfigFile, logger)
	if err != nil {
		logger.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	sup.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		received := <-sig
		logger.Infof("received signal %v, shutting down", received)
		sup.Shutdown()

		signum, ok := received.(syscall.Signal)
		if !ok {
			os.Exit(1)
		}
		os.Exit(int(signum))
	}()

	shell.Run(sup, os.Stdin, os.Stdout)

	logger.Infof("taskmasterd exiting cleanly")
	os.Exit(0)
}
