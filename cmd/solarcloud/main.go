package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joshp123/solarcloud/internal/config"
)

func main() {
	config.LoadEnv()

	if len(os.Args) < 2 {
		serveMain(nil)
		return
	}

	switch os.Args[1] {
	case "serve":
		serveMain(os.Args[2:])
	case "oauth":
		oauthMain(os.Args[2:])
	case "history":
		historyMain(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("solarcloud <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve [--config <path>]")
	fmt.Println("  oauth auth-code --redirect-url <url> [--config <path>]")
	fmt.Println("  history --plant <id> --code <code> [--limit N] [--config <path>]")
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
