package main

import (
	"context"
	"fmt"

	"facespace/internal/core/processor"
	"facespace/internal/db"
	"facespace/internal/db/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app bundles the database and recognition service shared by all commands.
type app struct {
	conn    *gorm.DB
	service *processor.Service
}

func openApp() (*app, error) {
	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	service, err := processor.NewService(cfg, repository.NewSQLiteRepository(conn))
	if err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	return &app{conn: conn, service: service}, nil
}

// loadModel restores the latest snapshot, training a new model if none
// exists and train is set.
func (a *app) loadModel(ctx context.Context, train bool) error {
	restored, err := a.service.Restore()
	if err != nil {
		log.WithError(err).Warn("Failed to restore model snapshot")
	}
	if restored {
		return nil
	}
	if !train {
		return fmt.Errorf("no trained model found, run 'facespace train' first")
	}
	_, err = a.service.Train(ctx)
	return err
}

func (a *app) Close() {
	if err := db.Close(a.conn); err != nil {
		log.WithError(err).Warn("Failed to close database")
	}
}
