// Команда votes запускает HTTP-сервис подсчёта голосов по матчапам.
//
//	votes [-a addr] [-f db.json] [-d dsn] [-s sqlite] [-r redis-url] [-t timeout] [-l level]
//	votes dump-token [-ttl 1h]
//
// Подкоманда dump-token печатает JWT для GET /dump-votes, подписанный DUMP_SECRET.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/config"
	"github.com/aseptimu/matchup-votes/internal/app/middleware"
	"github.com/aseptimu/matchup-votes/internal/app/server"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("votes: %v", err)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "dump-token" {
		return printDumpToken(args[1:])
	}

	cfg, err := config.NewConfig(args, ".env")
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("Starting votes service", "address", cfg.ServerAddress, "backend", cfg.Backend())
	if err := server.Run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("Server stopped with error", "error", err)
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func printDumpToken(args []string) error {
	fset := flag.NewFlagSet("dump-token", flag.ContinueOnError)
	ttl := fset.Duration("ttl", time.Hour, "token lifetime")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := config.NewConfig(nil, ".env")
	if err != nil {
		return err
	}
	if cfg.DumpSecret == "" {
		return errors.New("DUMP_SECRET is not set")
	}

	token, err := middleware.IssueDumpToken(cfg.DumpSecret, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
