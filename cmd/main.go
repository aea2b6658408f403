package main

import (
	"log/slog"
	"os"

	"github.com/BlockAce01/Examind-sub001/internal/cli"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := cli.Execute(); err != nil {
		slog.Error("examind: exited with error", "error", err)
		os.Exit(1)
	}
}
