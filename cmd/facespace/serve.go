package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facespace/internal/api/handlers"
	"facespace/internal/cleanup"
	"facespace/internal/core/processor"
	"facespace/internal/integrations/homeassistant"
	"facespace/internal/integrations/mqtt"
	"facespace/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the facespace HTTP API. The latest model snapshot is restored on
startup; with model.train_on_start a new model is trained when none exists.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides server.host)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.loadModel(ctx, cfg.Model.TrainOnStart); err != nil {
		log.WithError(err).Warn("Starting without a trained model")
	}

	sseHub := sse.NewHub()
	go sseHub.Run()
	defer sseHub.Stop()
	a.service.AddPublisher(sseHub)

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT)
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		} else {
			defer mqttClient.Stop()
			a.service.AddPublisher(mqttClient)
			if cfg.MQTT.HomeAssistant {
				dm := startDiscovery(a, mqttClient)
				defer func() { _ = dm.PublishAvailability(false) }()
			}
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	pool := processor.NewWorkerPool(a.service, cfg.Server.Workers)
	defer pool.Shutdown()

	cleanupService := cleanup.NewService(a.service.Repository(), cfg.Cleanup.RetentionDays,
		time.Duration(cfg.Cleanup.IntervalHours)*time.Hour)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, handlers.NewAPIHandler(cfg, a.service, pool, sseHub))

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	// Stop the SSE hub first so open event streams end.
	sseHub.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	log.Info("Server stopped.")
	return nil
}

// startDiscovery registers the Home Assistant sensors of the current model
// and keeps their state updated.
func startDiscovery(a *app, client *mqtt.Client) *homeassistant.DiscoveryManager {
	dm := homeassistant.NewDiscoveryManager(client, cfg.MQTT, Version)
	if err := dm.PublishAvailability(true); err != nil {
		log.WithError(err).Warn("Failed to publish Home Assistant availability")
	}
	var labels []string
	if model := a.service.Model(); model != nil {
		labels = model.ClassLabels
	}
	if err := dm.RegisterIdentities(labels); err != nil {
		log.WithError(err).Warn("Home Assistant discovery incomplete")
	}
	a.service.AddPublisher(dm)
	return dm
}
