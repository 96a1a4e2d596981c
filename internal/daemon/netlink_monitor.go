package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/usbid"
)

// presenceEvent is one observation of the tracked device appearing on or
// leaving the USB bus.
type presenceEvent struct {
	Present bool
	At      time.Time
}

// netlinkMonitor listens for udev netlink events and reports add/remove of
// the configured wearable identity. Hotplug detection is the daemon's whole
// reason to exist, so a failed netlink connection is fatal rather than a
// degraded mode.
type netlinkMonitor struct {
	logger   *slog.Logger
	identity usbid.Identity
	emit     func(presenceEvent)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, emit func(presenceEvent)) *netlinkMonitor {
	return &netlinkMonitor{
		logger:   logging.NewComponentLogger(logger, "netlink-monitor"),
		identity: usbid.NewIdentity(cfg.Device.VendorID, cfg.Device.ProductID),
		emit:     emit,
	}
}

// Start connects to the udev netlink socket and begins listening.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect to udev netlink socket: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String("vendor_id", m.identity.VendorID),
		logging.String("product_id", m.identity.ProductID),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "a plug event may have been missed"),
			)
		}
	}
}

// buildMatcher restricts the stream to whole-device USB hotplug events:
// SUBSYSTEM=usb, DEVTYPE=usb_device, ACTION=add|remove. Interface-level
// events are excluded so each physical insertion produces one add.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
		},
	})
	return rules
}

// handleEvent filters a matched uevent down to the tracked identity and
// forwards it as a presence observation.
func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	present, ok := m.classify(string(uevent.Action), uevent.Env)
	if !ok {
		return
	}

	m.logger.Debug("tracked device event",
		logging.String("action", string(uevent.Action)),
		logging.String("kobj", uevent.KObj),
		logging.Bool("present", present),
	)
	if m.emit != nil {
		m.emit(presenceEvent{Present: present, At: time.Now()})
	}
}

// classify decides whether a uevent concerns the tracked identity and, if so,
// whether it marks the device present or absent. The PRODUCT env value
// carries unpadded hex ("1/1/100"), which the identity compares numerically.
func (m *netlinkMonitor) classify(action string, env map[string]string) (present, ok bool) {
	vendorHex, productHex, parsed := usbid.ParseProductEnv(env["PRODUCT"])
	if !parsed || !m.identity.Matches(vendorHex, productHex) {
		return false, false
	}

	switch action {
	case "add":
		return true, true
	case "remove":
		return false, true
	default:
		return false, false
	}
}
