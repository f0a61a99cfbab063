// Command garden-pump drives an irrigation pump from schedules, sensor
// thresholds and a web API, over a serial relay controller or a GPIO
// relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/garden-pump/internal/config"
	"github.com/sweeney/garden-pump/internal/coordinator"
	"github.com/sweeney/garden-pump/internal/device"
	"github.com/sweeney/garden-pump/internal/intent"
	"github.com/sweeney/garden-pump/internal/notify"
	"github.com/sweeney/garden-pump/internal/pump"
	"github.com/sweeney/garden-pump/internal/response"
	"github.com/sweeney/garden-pump/internal/schedule"
	"github.com/sweeney/garden-pump/internal/web"
)

const version = "0.1.0"

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "garden-pump",
		Short: "Garden pump controller",
		Long:  "Irrigation pump controller. Drives a relay over serial or GPIO from schedules, moisture thresholds and a web API.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the pump daemon",
		RunE:  runDaemon,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("garden-pump v" + version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/garden-pump/config.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("config file %s not found, using defaults", configFile)
			cfg = config.Default()
		} else {
			return fmt.Errorf("load config: %w", err)
		}
	}

	// Actuator backend
	link, err := buildLink(cfg)
	if err != nil {
		return fmt.Errorf("init device link: %w", err)
	}
	defer link.Close()

	core := pump.New(link)
	if err := core.SetDefaultDuration(cfg.DefaultDuration()); err != nil {
		return fmt.Errorf("default duration: %w", err)
	}

	// Schedule persistence
	store, err := schedule.OpenStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open schedule store: %w", err)
	}
	defer store.Close()

	engine := schedule.NewEngine(store)
	entries, err := store.LoadEntries()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	engine.Restore(entries)
	log.Printf("restored %d schedule(s)", len(entries))

	// Threshold responses
	thresholds := response.Thresholds{
		MoistureLow:        cfg.Thresholds.MoistureLow,
		MoistureHigh:       cfg.Thresholds.MoistureHigh,
		TemperatureHigh:    cfg.Thresholds.TemperatureHigh,
		TemperatureEnabled: cfg.Thresholds.TemperatureEnabled,
		Cooldown:           cfg.Cooldown(),
		RunDuration:        cfg.RunDuration(),
	}
	arbiter := response.NewArbiter(thresholds)

	// Event delivery
	var publisher notify.Publisher
	if cfg.MQTT.Enabled {
		pub, err := notify.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			// The daemon must still water plants when the broker is down.
			log.Printf("mqtt connect failed, events disabled: %v", err)
		} else {
			publisher = notify.NewBufferedPublisher(pub, notify.DefaultBufferCapacity)
			defer pub.Close()
		}
	}

	coord := coordinator.New(core, publisher)
	go coord.Run()

	stop := make(chan struct{})

	scheduleTicker := time.NewTicker(cfg.ScheduleTick())
	defer scheduleTicker.Stop()
	go engine.Run(stop, scheduleTicker.C, func() (bool, intent.Source) {
		st := core.Status()
		return st.On, st.Source
	}, func(in intent.Intent) { coord.Submit(in) })

	responseTicker := time.NewTicker(cfg.ResponseTick())
	defer responseTicker.Stop()
	go arbiter.Run(stop, responseTicker.C, noSensors, func() bool {
		return core.Status().On
	}, func(in intent.Intent) { coord.Submit(in) })

	// Web API
	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		metrics := web.NewMetrics()
		metrics.RegisterPumpState(core.Status)
		metrics.RegisterLinkMode(link.Status)
		metrics.RegisterScheduleCount(func() int { return len(engine.List()) })

		srv = web.New(cfg.HTTP.Addr, core, link, coord.Submit, engine, arbiter, metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		log.Printf("http api listening on %s", cfg.HTTP.Addr)
	}

	if publisher != nil {
		startup := notify.SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		}
	}

	log.Printf("started: link=%s schedule_tick=%v response_tick=%v",
		link.Status().Mode, cfg.ScheduleTick(), cfg.ResponseTick())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %v, shutting down", sig)

	// Stop producers first, then drain the queue with a final off so
	// the pump never survives the daemon.
	close(stop)
	coord.Submit(intent.Deactivate(intent.Manual()))
	coord.Stop()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}

	if publisher != nil {
		shutdown := notify.SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: sig.String()}
		if err := publisher.PublishSystem(shutdown); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		}
	}

	return nil
}

// buildLink chooses the actuator backend from config.
func buildLink(cfg *config.Config) (device.Link, error) {
	if cfg.GPIO.Enabled {
		return device.NewRelayLink(cfg.GPIO.Pin, cfg.GPIO.ActiveLow)
	}
	return device.NewSerialLink(device.SerialConfig{
		Port:          cfg.Serial.Port,
		Baud:          cfg.Serial.Baud,
		ProbeInterval: cfg.ProbeInterval(),
	}), nil
}

// noSensors is the pull function used until a sensor source is wired
// in; nil readings never trigger a response.
func noSensors() response.Readings {
	return response.Readings{}
}
