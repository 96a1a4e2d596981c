package daemon

import (
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"dockd/internal/testsupport"
)

func trackedMonitor(t *testing.T, emit func(presenceEvent)) *netlinkMonitor {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithIdentity("0001", "0001"))
	return newNetlinkMonitor(cfg, nil, emit)
}

func TestBuildMatcher(t *testing.T) {
	m := trackedMonitor(t, nil)
	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	addEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
			"PRODUCT":   "1/1/100",
		},
	}
	if !matcher.Evaluate(addEvent) {
		t.Error("expected matcher to accept usb_device add")
	}

	removeEvent := addEvent
	removeEvent.Action = netlink.REMOVE
	if !matcher.Evaluate(removeEvent) {
		t.Error("expected matcher to accept usb_device remove")
	}

	interfaceEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_interface",
		},
	}
	if matcher.Evaluate(interfaceEvent) {
		t.Error("expected matcher to reject interface-level events")
	}

	blockEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	}
	if matcher.Evaluate(blockEvent) {
		t.Error("expected matcher to reject non-usb subsystems")
	}
}

func TestClassify(t *testing.T) {
	m := trackedMonitor(t, nil)

	cases := []struct {
		name        string
		action      string
		product     string
		wantPresent bool
		wantOK      bool
	}{
		{"tracked add unpadded", "add", "1/1/100", true, true},
		{"tracked add padded", "add", "0001/0001/0100", true, true},
		{"tracked remove", "remove", "1/1/100", false, true},
		{"other vendor", "add", "46d/c52b/1201", false, false},
		{"missing product env", "add", "", false, false},
		{"malformed product env", "add", "nonsense", false, false},
		{"unexpected action", "change", "1/1/100", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := map[string]string{}
			if tc.product != "" {
				env["PRODUCT"] = tc.product
			}
			present, ok := m.classify(tc.action, env)
			if ok != tc.wantOK || present != tc.wantPresent {
				t.Fatalf("classify(%q, %q) = (%v, %v), want (%v, %v)",
					tc.action, tc.product, present, ok, tc.wantPresent, tc.wantOK)
			}
		})
	}
}

func TestHandleEventEmitsPresence(t *testing.T) {
	var got []presenceEvent
	m := trackedMonitor(t, func(evt presenceEvent) { got = append(got, evt) })

	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"PRODUCT": "1/1/100"},
	})
	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"PRODUCT": "1/1/100"},
	})
	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"PRODUCT": "46d/c52b/1201"},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 emitted events, got %d", len(got))
	}
	if !got[0].Present || got[1].Present {
		t.Fatalf("wrong presence sequence: %+v", got)
	}
}

func TestMonitorLifecycleSafety(t *testing.T) {
	m := trackedMonitor(t, nil)
	if m.Running() {
		t.Error("unstarted monitor must not report running")
	}
	m.Stop() // must not panic
	m.Stop() // double stop must not panic
	if m.Running() {
		t.Error("stopped monitor must not report running")
	}
}
