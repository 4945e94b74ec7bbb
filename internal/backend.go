package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markusressel/fangrid/internal/api"
	"github.com/markusressel/fangrid/internal/bridge"
	"github.com/markusressel/fangrid/internal/configuration"
	"github.com/markusressel/fangrid/internal/dispatch"
	"github.com/markusressel/fangrid/internal/firmware"
	"github.com/markusressel/fangrid/internal/fleet"
	"github.com/markusressel/fangrid/internal/grid"
	"github.com/markusressel/fangrid/internal/persistence"
	"github.com/markusressel/fangrid/internal/protocol"
	"github.com/markusressel/fangrid/internal/statistics"
	"github.com/markusressel/fangrid/internal/supervisor"
	"github.com/markusressel/fangrid/internal/telemetry"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RunDaemon() {
	config := configuration.CurrentConfig

	pers := persistence.NewPersistence(config.DbPath)
	if err := pers.Init(); err != nil {
		ui.Fatal("Unable to open database at %s: %v", config.DbPath, err)
	}

	mapper, err := grid.NewMapper(config.GridDimensions(), config.MaxFans, config.GridDevices())
	if err != nil {
		ui.Fatal("Unable to build the grid mapping: %v", err)
	}

	registry := fleet.NewRegistry(config.MaxFans, seedDevices(config))
	store := telemetry.NewStore(registry.PlacedCount(), config.MaxFans)
	codec := protocol.NewCodec(config.Network.Passcode, config.DcDecimals, config.Network.MaxFrameLength)
	flash := dispatch.NewFlash()
	stager := firmware.NewStager(config.Firmware.StagingDir, config.Firmware.HttpPort)
	dispatcher := dispatch.NewDispatcher(registry, codec, flash, stager, config.Network)
	link := supervisor.NewSupervisor(config, registry, store, dispatcher, codec, flash, pers)

	statistics.Register(statistics.NewFleetCollector(registry))
	statistics.Register(statistics.NewTelemetryCollector(store))
	statistics.Register(statistics.NewLinkCollector(dispatcher))

	var mqttBridge *bridge.Bridge
	if config.Bridge.Enabled {
		mqttBridge = bridge.NewBridge(config.Bridge, registry, store)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		enabled := config.Statistics.Enabled
		if enabled {
			// === Prometheus Exporter
			g.Add(func() error {
				port := config.Statistics.Port
				if port <= 0 || port >= 65535 {
					port = 9000
				}
				endpoint := "/metrics"
				addr := fmt.Sprintf(":%d", port)
				handler := promhttp.Handler()
				http.Handle(endpoint, handler)
				server := &http.Server{Addr: addr, Handler: handler}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						ui.Error("Cannot start prometheus metrics endpoint (%s)", err.Error())
					}
				}()

				select {
				case <-ctx.Done():
					ui.Info("Stopping statistics server...")
					timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer timeoutCancel()
					return server.Shutdown(timeoutCtx)
				}
			}, func(err error) {
				if err != nil {
					ui.Warning("Error stopping statistics server: " + err.Error())
				} else {
					ui.Info("Statistics server stopped.")
				}
			})
		}
	}
	{
		enabled := config.Api.Enabled
		if enabled {
			// === REST Api
			restService := api.NewRestService(registry, store, mapper, dispatcher).CreateRestService()
			g.Add(func() error {
				addr := fmt.Sprintf("%s:%d", config.Api.Host, config.Api.Port)
				go func() {
					if err := restService.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						ui.Error("Cannot start REST api endpoint (%s)", err.Error())
					}
				}()

				select {
				case <-ctx.Done():
					ui.Info("Stopping REST api server...")
					timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer timeoutCancel()
					return restService.Shutdown(timeoutCtx)
				}
			}, func(err error) {
				if err != nil {
					ui.Warning("Error stopping REST api server: " + err.Error())
				} else {
					ui.Info("REST api server stopped.")
				}
			})
		}
	}
	{
		// === Fleet link
		g.Add(func() error {
			if err := link.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			link.Stop()
			return nil
		}, func(err error) {
			if err != nil {
				ui.Warning("Fleet link stopped: %v", err)
			}
		})
	}
	{
		// === Fleet event log
		g.Add(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-registry.Events():
					logFleetEvent(event)
					if mqttBridge != nil {
						mqttBridge.PublishEvent(event)
					}
				}
			}
		}, func(err error) {
			if err != nil {
				ui.Warning("Fleet event log stopped: %v", err)
			}
		})
	}
	{
		if mqttBridge != nil {
			// === MQTT Bridge
			g.Add(func() error {
				return mqttBridge.Run(ctx)
			}, func(err error) {
				if err != nil {
					ui.Warning("MQTT bridge stopped: %v", err)
				}
			})
		}
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, os.Kill)

		g.Add(func() error {
			<-sig
			ui.Info("Received SIGTERM signal, exiting...")
			return nil
		}, func(err error) {
			defer close(sig)
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	} else {
		ui.Info("Done.")
		os.Exit(0)
	}
}

// seedDevices converts the device profile into registry seeds. Registration
// order fixes each device's ordinal and with it its K range.
func seedDevices(config configuration.Configuration) []fleet.Device {
	seeds := make([]fleet.Device, 0, len(config.Devices))
	for _, device := range config.Devices {
		seeds = append(seeds, fleet.Device{
			Name:    device.Name,
			Mac:     device.Mac,
			MaxFans: device.MaxFans,
			Placement: grid.Placement{
				Row:        device.Row,
				Column:     device.Column,
				RowSpan:    device.RowSpan,
				ColumnSpan: device.ColumnSpan,
			},
		})
	}
	return seeds
}

func logFleetEvent(event fleet.Event) {
	switch event.Kind {
	case fleet.EventLinkDown:
		ui.Error("Fleet link lost, marked all devices as timed out")
	default:
		device := event.Device
		ui.Info("Device %s (%s) is now %s", device.Name, device.Mac, device.State)
	}
}
