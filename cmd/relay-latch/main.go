// Command relay-latch polls an input line and drives an output that, once
// switched, holds its state for a configured minimum time. Output transitions
// are published to MQTT.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/relay-latch/internal/config"
	"github.com/sweeney/relay-latch/internal/gpio"
	"github.com/sweeney/relay-latch/internal/logic"
	"github.com/sweeney/relay-latch/internal/modbus"
	"github.com/sweeney/relay-latch/internal/mqtt"
	"github.com/sweeney/relay-latch/internal/status"
	"github.com/sweeney/relay-latch/internal/web"
)

var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "relay-latch",
		Short:        "Drive an output with minimum on/off times from a noisy input",
		SilenceUsage: true,
		RunE:         runDaemon,
	}
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current input state and exit",
		RunE:  printState,
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "TOML config file (watched for minimum_on/minimum_off changes)")
	f.Duration("poll", 0, "Input polling interval")
	f.Duration("min-on", 0, "Minimum time the output stays ON")
	f.Duration("min-off", 0, "Minimum time the output stays OFF")
	f.Duration("heartbeat", 0, "Heartbeat interval (0 to disable)")
	f.String("broker", "", "MQTT broker address")
	f.String("http", "", "HTTP status address (empty to disable)")
	f.String("ws-broker", "", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	f.String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(stateCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file and applies any flags set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags overwrites cfg with every flag set on the command line. Flags
// win over the file, both at startup and on every reload.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	durations := map[string]*time.Duration{
		"poll":      &cfg.Poll,
		"min-on":    &cfg.MinimumOn,
		"min-off":   &cfg.MinimumOff,
		"heartbeat": &cfg.Heartbeat,
	}
	for name, dst := range durations {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	strs := map[string]*string{
		"broker":    &cfg.MQTT.Broker,
		"http":      &cfg.HTTP.Addr,
		"ws-broker": &cfg.MQTT.WSBroker,
		"log-level": &cfg.LogLevel,
	}
	for name, dst := range strs {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
}

// devices holds the opened input and output drivers.
type devices struct {
	reader  gpio.Reader
	writer  gpio.Writer
	closers []func() error
}

func (d *devices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Printf("close device: %v", err)
		}
	}
}

// openDevices opens the input, and the output unless inputOnly is set.
// A single Modbus connection is shared when both sides use it.
func openDevices(cfg config.Config, inputOnly bool) (*devices, error) {
	d := &devices{}
	var mb *modbus.Device
	if cfg.Input.Driver == config.DriverModbus || (!inputOnly && cfg.Output.Driver == config.DriverModbus) {
		dev, err := modbus.Dial(modbus.Config{
			Address:      cfg.Modbus.Address,
			SlaveID:      cfg.Modbus.SlaveID,
			InputAddress: cfg.Modbus.InputAddress,
			CoilAddress:  cfg.Modbus.CoilAddress,
			Timeout:      cfg.Modbus.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init modbus: %w", err)
		}
		mb = dev
		d.closers = append(d.closers, mb.Close)
	}

	switch cfg.Input.Driver {
	case config.DriverModbus:
		d.reader = mb
	default:
		r, err := gpio.NewRealReader(cfg.Input.Chip, cfg.Input.Pin, cfg.Input.ActiveLow)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init input: %w", err)
		}
		d.reader = r
		d.closers = append(d.closers, r.Close)
	}

	if inputOnly {
		return d, nil
	}

	switch cfg.Output.Driver {
	case config.DriverModbus:
		out, err := mb.OpenOutput()
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init output: %w", err)
		}
		d.writer = out
		d.closers = append(d.closers, out.Close)
	default:
		w, err := gpio.NewRealWriter(cfg.Output.Chip, cfg.Output.Pin, cfg.Output.ActiveLow)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init output: %w", err)
		}
		d.writer = w
		d.closers = append(d.closers, w.Close)
	}
	return d, nil
}

func printState(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	dev, err := openDevices(cfg, true)
	if err != nil {
		return err
	}
	defer dev.Close()

	on, err := dev.reader.Read()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Printf("INPUT: %s\n", stateString(on))
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)
	return run(cmd, cfg)
}

func run(cmd *cobra.Command, cfg config.Config) error {
	dev, err := openDevices(cfg, false)
	if err != nil {
		return err
	}
	defer dev.Close()

	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	times := logic.LatchTimes{MinimumOn: cfg.MinimumOn, MinimumOff: cfg.MinimumOff}
	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       cfg.Poll.Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		InputDriver:  cfg.Input.Driver,
		OutputDriver: cfg.Output.Driver,
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		WSBroker:     ws,
	}, times)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, cfg.HTTP.MQTTJS)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	var reload <-chan config.Config
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			defer watcher.Close()
			go watcher.Run(ctx)
			reload = watcher.Updates()
		}
	}

	log.Printf("started: poll=%v min_on=%v min_off=%v broker=%s heartbeat=%v",
		cfg.Poll, cfg.MinimumOn, cfg.MinimumOff, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		reader:     dev.reader,
		actuator:   dev.writer,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		times:      times,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
		tick:       ticker.C,
		sig:        sigCh,
		reload:     reload,
		adjust:     func(c *config.Config) error { return applyFlags(cmd, c) },
	}
	return l.run()
}

// loop is the single goroutine that owns the controller.
type loop struct {
	reader     gpio.Reader
	actuator   logic.Actuator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	tracker    *status.Tracker       // may be nil
	times      logic.LatchTimes
	heartbeat  time.Duration
	now        func() time.Time
	tick       <-chan time.Time
	sig        <-chan os.Signal
	reload     <-chan config.Config       // nil disables live reconfiguration
	adjust     func(*config.Config) error // applied to reloaded configs; may be nil
}

func (l *loop) run() error {
	controller := logic.NewController(l.times, l.actuator, l.now())

	for {
		select {
		case s := <-l.sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if l.tracker != nil {
				l.refreshMQTT()
				snap := l.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case cfg := <-l.reload:
			if l.adjust != nil {
				if err := l.adjust(&cfg); err != nil {
					log.Printf("config reload rejected: %v", err)
					continue
				}
				if err := cfg.Validate(); err != nil {
					log.Printf("config reload rejected: %v", err)
					continue
				}
			}
			times := logic.LatchTimes{MinimumOn: cfg.MinimumOn, MinimumOff: cfg.MinimumOff}
			if times == controller.LatchTimes() {
				continue
			}
			controller.SetLatchTimes(times)
			log.WithFields(log.Fields{
				"min_on":  times.MinimumOn,
				"min_off": times.MinimumOff,
			}).Info("latch times reloaded")

			event := mqtt.SystemEvent{Timestamp: l.now(), Event: "RELOAD"}
			if l.tracker != nil {
				l.tracker.SetLatchTimes(times)
				event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "RELOAD", "")
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("reload publish error: %v", err)
			}

		case <-l.tick:
			t := l.now()
			on, err := l.reader.Read()
			if err != nil {
				log.Printf("input read error: %v", err)
				continue
			}

			events := controller.Process(logic.Input{On: on, Time: t})

			for _, event := range events {
				fields := log.Fields{"input": event.Input, "output": event.Output}
				if event.Err != nil {
					log.WithFields(fields).Errorf("event: %s, actuation failed: %v", event.Type, event.Err)
				} else {
					log.WithFields(fields).Infof("event: %s", event.Type)
				}
				if err := l.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			if l.tracker != nil {
				l.tracker.Update(controller)
				l.refreshMQTT()
			}

			// Check for heartbeat
			if hbData := controller.CheckHeartbeat(t, l.heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v output_on=%d output_off=%d",
					hbData.Uptime, hbData.Counts.On, hbData.Counts.Off)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if l.tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						l.tracker.SetNetwork(net)
					}
					snap := l.tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := l.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func (l *loop) refreshMQTT() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
