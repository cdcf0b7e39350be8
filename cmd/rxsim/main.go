package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/env"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
	"github.com/robotalks/rxlink.go/pkg/radio"
	"github.com/robotalks/rxlink.go/pkg/serialio"
	"github.com/robotalks/rxlink.go/pkg/servo"
	"github.com/robotalks/rxlink.go/pkg/transponder"
)

var (
	pinList        = "2,3,4,5,6,7,8,9"
	reportInterval = 5 * time.Second
	statusInterval = radio.DefaultStatusInterval
)

func init() {
	env.SetupFlags()
	flag.StringVar(&pinList, "pins", pinList, "Output pins, comma separated, empty for none")
	flag.DurationVar(&reportInterval, "report", reportInterval, "Output report interval, 0 to disable")
	flag.DurationVar(&statusInterval, "status", statusInterval, "Minimal interval between link status messages")
}

func parsePins(s string) ([]int, error) {
	var pins []int
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		pin, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q", item)
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

func openStore(path string) (*config.Store, error) {
	if path == "" {
		glog.Info("no config file, using defaults")
		return config.NewStore(config.Default()), nil
	}
	return config.OpenStore(path)
}

func reportOutputs(driver *servo.SimDriver, status *link.Status, port *serialio.StreamPort) framework.Runnable {
	return framework.NamedRun("report", framework.RunFunc(func(ctx context.Context) error {
		if reportInterval <= 0 {
			<-ctx.Done()
			return ctx.Err()
		}
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				outs := driver.Outputs()
				items := make([]string, len(outs))
				for n, out := range outs {
					items[n] = out.String()
				}
				glog.Infof("%s lq=%d outputs: %s", status.State(), status.LinkQuality(), strings.Join(items, " "))
				if port != nil {
					if n := port.Overruns.Load(); n > 0 {
						glog.Warningf("%s: %d rx overruns", port.Name(), n)
					}
				}
			}
		}
	}))
}

func main() {
	flag.Parse()
	conf := env.Default()

	pins, err := parsePins(pinList)
	if err != nil {
		glog.Fatalf("pins: %v", err)
	}
	store, err := openStore(conf.ConfigPath)
	if err != nil {
		glog.Fatalf("config: %v", err)
	}
	cfg := store.Config()

	q, err := radio.NewQueueFromURL(conf.MQTTBrokerURL)
	if err != nil {
		glog.Fatalf("mqtt: %v", err)
	}

	bus := channels.NewBus()
	status := link.NewStatus()
	kernel := framework.NewKernel()
	rxID := conf.ReceiverID()

	rx := radio.NewReceiver(rxID, bus, status, kernel, store, q)
	rx.RxTimeout, rx.FrameInterval = cfg.RxTimeout(), cfg.FrameInterval()
	if statusInterval > 0 {
		rx.SetStatusInterval(statusInterval)
	}
	rx.Subscribe(q)

	driver := servo.NewSimDriver()
	runnables := []framework.Runnable{rx, store}

	var sio serialio.SerialIO
	var port *serialio.StreamPort
	if cfg.Serial.Port != "" {
		if port, err = serialio.OpenPort(cfg.Serial.Port); err != nil {
			glog.Fatalf("serial: %v", err)
		}
		l := serialio.NewLink(port, cfg.Serial.FrameInterval(), cfg.Serial.MaxWrite)
		l.Status = status
		l.Telemetry = rx.RelayTelemetry
		sio = l
		runnables = append(runnables, port)
	}
	runnables = append(runnables, reportOutputs(driver, status, port))

	kernel.Register(
		servo.New(driver, store, bus, status, pins),
		serialio.NewDevice(sio, bus, status),
		transponder.New(store, transponder.NewSimEmitter(), transponder.Factories()),
	)
	if err := kernel.Init(); err != nil {
		glog.Fatalf("init: %v", err)
	}

	if err := q.Connect(); err != nil {
		glog.Fatalf("mqtt connect %s: %v", conf.MQTTBrokerURL, err)
	}
	defer q.Close()

	runner := framework.NewRunner().HandleSignals()
	runner.Go(framework.NamedRun("kernel", framework.RunFunc(kernel.Run)))
	runner.Go(runnables...)
	glog.Infof("receiver %s running", rxID)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		glog.Warningf("sd_notify: %v", err)
	}
	if err := runner.Wait(); err != nil {
		glog.Errorf("stopped: %v", err)
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)
}
