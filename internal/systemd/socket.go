package systemd

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Socket names expected in focuspact.socket (FileDescriptorName=).
const (
	SocketAPI     = "api"
	SocketMetrics = "metrics"
)

// Listeners holds the systemd-activated listeners
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	if os.Getenv("LISTEN_FDS") == "" {
		return listeners, nil
	}

	listeners.Activated = true

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := named[SocketAPI]; ok && len(lns) > 0 {
		listeners.API = lns[0]
	}
	if lns, ok := named[SocketMetrics]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyStatus publishes a free-form status line shown by systemctl status.
func NotifyStatus(status string) error {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		return fmt.Errorf("failed to send sd_notify status: %w", err)
	}
	return nil
}

// RunWatchdog pings the systemd watchdog at half its timeout until ctx is
// done. It returns immediately when the watchdog is not enabled.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read watchdog settings")
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn().Err(err).Msg("Failed to send watchdog ping")
			}
		}
	}
}

// IsSystemdService returns true if running as a systemd notify service
func IsSystemdService() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
