package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chromiumboot/vbkernel/bootctx"
)

var (
	logLevel  string
	logPretty bool

	log zerolog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vbkernel",
		Short:         "verified-boot kernel load and verification core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log = zerolog.New(output(os.Stderr)).Level(level).With().Timestamp().Logger()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", zerolog.InfoLevel.String(),
		"logging level (trace|debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false,
		"use zerolog's human-readable console writer instead of JSON")

	root.AddCommand(newScanCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newMeasureCmd())
	root.AddCommand(newMakeFixtureCmd())

	return root
}

func output(w *os.File) io.Writer {
	if logPretty {
		return zerolog.ConsoleWriter{Out: w}
	}
	return w
}

func bootLogger() bootctx.Logger {
	return bootctx.ZeroLogger{Log: log}
}
