package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// readConfig загружает конфигурацию и сразу настраивает логирование.
func readConfig(path string) (app.Config, error) {
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return app.Config{}, err
	}
	app.ConfigureLogger(cfg)
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml or /etc/marketplace/config.yaml)")
	flag.Parse()

	cfg, err := readConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"publisher":    cfg.OutboxPublisher,
		"version":      version.GetVersion(),
	}).Info("запускаем marketplace")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("marketplace остановлен")
}
