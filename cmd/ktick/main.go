/*
 * tickkernel - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/dlrichey/tickkernel/command/reader"
	config "github.com/dlrichey/tickkernel/config/configparser"
	"github.com/dlrichey/tickkernel/kernel/orchestrator"
	logger "github.com/dlrichey/tickkernel/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "ktick.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Also log debug records to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, *optDebug))
	slog.SetDefault(Logger)

	Logger.Info("ktick started")

	if *optConfig == "" {
		Logger.Error("please specify a configuration file")
		os.Exit(1)
	}

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		Logger.Error("configuration file can't be found", "path", *optConfig)
		os.Exit(1)
	}

	cfg, err := config.LoadConfigFile(*optConfig)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	sys, err := orchestrator.New(cfg)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	sys.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		reader.ConsoleReader(sys)
		close(done)
	}()

	select {
	case <-sigChan:
		Logger.Info("got quit signal")
	case <-done:
		Logger.Info("console requested shutdown")
	}

	Logger.Info("shutting down")
	sys.Stop()
	Logger.Info("shutdown complete")
}
