package engine

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	sdReady    = daemon.SdNotifyReady
	sdStopping = daemon.SdNotifyStopping
)

// notifySystemd reports service state when running under systemd with
// Type=notify. Outside systemd it does nothing.
func notifySystemd(state string) {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		slog.Warn("[ENGINE] sd_notify failed", "state", state, "error", err)
		return
	}
	if ok {
		slog.Debug("[ENGINE] sd_notify", "state", state)
	}
}
