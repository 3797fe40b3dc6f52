package gwd

import (
	"context"
	"strings"
	"sync"
	"time"

	bridge "github.com/mcubridge/gatewayd"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
)

// Daemon wires every subsystem together: serial transport + handshake,
// flow controller, MQTT transport, router with its seven service
// components, metrics publisher, watchdog, and control server. Run drives
// them all under one errgroup until ctx is cancelled or a fatal error
// surfaces from any supervised task.
type Daemon struct {
	cfg   bridge.Config
	log   *logging.Logger
	state *RuntimeState

	serial *SerialTransport
	flow   *FlowController
	mqtt   *MQTTTransport
	router *Router

	supervisor *Supervisor
	metrics    *MetricsPublisher
	system     *SystemComponent
	control    *ControlServer
	alertLog   bridge.AlertLog

	wg sync.WaitGroup
}

// NewDaemon constructs every subsystem from cfg but does not start any of
// them; call Run to start.
func NewDaemon(cfg bridge.Config, log *logging.Logger) (*Daemon, error) {
	state := NewRuntimeState(cfg)
	timeouts := cfg.Timeouts()

	serial := NewSerialTransport(cfg.SerialPort, cfg.SerialBaud, cfg.SerialSafeBaud, state, log)
	flow := NewFlowController(serial, state, log, timeouts, cfg.SerialRetryAttempts)
	mqttTransport := NewMQTTTransport(cfg, state, log)

	linkConfig := bridge.LinkConfig{
		AckTimeoutMS:      uint16(cfg.SerialRetryTimeout),
		RetryLimit:        uint8(cfg.SerialRetryAttempts),
		ResponseTimeoutMS: uint32(cfg.SerialResponseTimeout),
	}
	handshakeRunner := NewHandshakeRunner(
		serial, state, log, []byte(cfg.SerialSharedSecret), linkConfig,
		timeouts.HandshakeMinInterval, timeouts.Handshake, cfg.SerialHandshakeFatalFailures,
	)
	serial.OnHandshake(handshakeRunner.Run)

	d := &Daemon{
		cfg:    cfg,
		log:    log,
		state:  state,
		serial: serial,
		flow:   flow,
		mqtt:   mqttTransport,
	}

	if alertLog, err := bridge.OpenAlertLog(cfg.AlertLogDir); err != nil {
		log.Warning("alert log unavailable, operator alerts will only reach the log:", err)
	} else {
		d.alertLog = alertLog
		state.SetAlertSink(func(msg string) {
			if err := alertLog.Append(msg); err != nil {
				log.Warning("writing alert log entry:", err)
			}
		})
	}

	ctx := bridgeContextImpl{daemon: d}

	pin := NewPinComponent(ctx, state)
	console := NewConsoleComponent(ctx, state)
	datastore := NewDatastoreComponent(ctx, state)
	file := NewFileComponent(ctx, state, cfg)
	mailbox := NewMailboxComponent(ctx, state)
	process := NewProcessComponent(ctx, state, cfg)
	system := NewSystemComponent(ctx, state, cfg, cfg.MQTTTopic)

	router := NewRouter(DefaultAuthorization{}, log)
	if d.alertLog.File != nil {
		router.SetAlertSink(func(msg string) { d.alertLog.Append(msg) })
	}
	router.Register(TopicDigital, pin)
	router.Register(TopicAnalog, pin)
	router.Register(TopicConsole, console)
	router.Register(TopicDatastore, datastore)
	router.Register(TopicFile, file)
	router.Register(TopicMailbox, mailbox)
	router.Register(TopicShell, process)
	router.Register(TopicSystem, system)
	d.system = system
	d.router = router

	frameSinks := []FrameSink{pin, console, datastore, file, mailbox}
	serial.AddSink(flow)
	serial.AddSink(frameSinkFunc(func(frame bridge.Frame) bool {
		for _, sink := range frameSinks {
			if sink.HandleFrame(frame) {
				return true
			}
		}
		return false
	}))

	mqttTransport.OnInbound(router.Dispatch)

	d.supervisor = NewSupervisor(state, log, cfg)
	d.metrics = NewMetricsPublisher(ctx, state, cfg, mqttTransport.Depths)
	d.control = NewControlServer(state, log, cfg.ControlSocketPath, func() {
		log.Notice("control-requested serial reconnect")
		serial.RequestReconnect()
	})

	return d, nil
}

// frameSinkFunc adapts a plain function to FrameSink, letting the
// per-component HandleFrame methods be chained as one sink.
type frameSinkFunc func(bridge.Frame) bool

func (f frameSinkFunc) HandleFrame(frame bridge.Frame) bool { return f(frame) }

// Run starts every supervised task and blocks until ctx is cancelled or one
// of them returns a fatal error.
func (d *Daemon) Run(ctx context.Context) error {
	if d.alertLog.File != nil {
		defer d.alertLog.Close()
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return d.supervisor.Run(gctx, "serial", d.serial.Run)
	})
	group.Go(func() error {
		return d.supervisor.Run(gctx, "mqtt", d.mqtt.Run)
	})
	group.Go(func() error {
		return d.supervisor.Run(gctx, "metrics", d.metrics.Run)
	})
	group.Go(func() error {
		return d.supervisor.Run(gctx, "watchdog", d.system.RunWatchdog)
	})

	group.Go(func() error {
		listener, err := d.control.Listen()
		if err != nil {
			return bridge.NewTransportError("binding control socket: %v", err)
		}
		defer listener.Close()
		go func() {
			<-gctx.Done()
			listener.Close()
		}()
		if err := d.control.HandleControlHTTP(listener); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	err := group.Wait()
	d.wg.Wait()
	return err
}

// bridgeContextImpl is the concrete BridgeContext every service component
// and the metrics publisher receive: SendFrame goes through the flow
// controller, Publish through the MQTT transport, ScheduleBackground spawns
// a tracked goroutine, and IsCommandAllowed consults the configured
// process allow-list.
type bridgeContextImpl struct {
	daemon *Daemon
}

func (c bridgeContextImpl) SendFrame(commandID uint16, payload []byte) (FlowResult, error) {
	return c.daemon.flow.Send(commandID, payload)
}

func (c bridgeContextImpl) Publish(topic string, payload []byte, meta ResponseMeta, userProps map[string]string) {
	c.daemon.mqtt.Publish(topic, payload, meta, userProps)
}

func (c bridgeContextImpl) ScheduleBackground(name string, f func()) {
	c.daemon.wg.Add(1)
	go func() {
		defer c.daemon.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.daemon.log.Error("background task", name, "panicked:", r)
			}
		}()
		f()
	}()
}

// IsCommandAllowed reports whether command's first whitespace-delimited
// token is on allowed_commands (case-insensitive); an empty list, or a
// list containing "*", allows everything.
func (c bridgeContextImpl) IsCommandAllowed(command string) bool {
	allowed := c.daemon.cfg.AllowedCommands
	if len(allowed) == 0 {
		return true
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	head := strings.ToLower(fields[0])
	for _, a := range allowed {
		if a == "*" || strings.ToLower(a) == head {
			return true
		}
	}
	return false
}

func (c bridgeContextImpl) Log() *logging.Logger { return c.daemon.log }
func (c bridgeContextImpl) Now() time.Time       { return time.Now() }
