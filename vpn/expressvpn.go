package vpn

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrVPNNotConnected = errors.New("VPN not connected")
	ErrVPNConnectFail  = errors.New("failed to connect VPN")
)

const (
	ctlBinary    = "expressvpnctl"
	pollAttempts = 30
)

type Config struct {
	AutoConnect bool
	Region      string
}

// Runner executes a CLI command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type ExpressVPN struct {
	cfg  Config
	run  Runner
	poll time.Duration
}

func NewExpressVPN(cfg Config) *ExpressVPN {
	return &ExpressVPN{cfg: cfg, run: execRunner, poll: time.Second}
}

// WithRunner swaps the command runner, used by tests.
func (v *ExpressVPN) WithRunner(run Runner, poll time.Duration) *ExpressVPN {
	v.run = run
	v.poll = poll
	return v
}

func (v *ExpressVPN) IsConnected(ctx context.Context) bool {
	out, err := v.run(ctx, ctlBinary, "status")
	if err != nil {
		return false
	}
	return parseConnected(string(out))
}

func parseConnected(status string) bool {
	status = strings.ToLower(status)
	return strings.Contains(status, "connected") && !strings.Contains(status, "disconnected") &&
		!strings.Contains(status, "not connected")
}

// EnsureConnected returns nil when the tunnel is up. With AutoConnect it
// connects to Region ("smart" when empty) and waits for the tunnel. started
// reports whether this call brought the tunnel up.
func (v *ExpressVPN) EnsureConnected(ctx context.Context) (started bool, err error) {
	if v.IsConnected(ctx) {
		return false, nil
	}
	if !v.cfg.AutoConnect {
		return false, ErrVPNNotConnected
	}

	region := v.cfg.Region
	if region == "" {
		region = "smart"
	}

	log.Info().Str("region", region).Msg("Connecting ExpressVPN")
	if _, err := v.run(ctx, ctlBinary, "connect", region); err != nil {
		return false, errors.Join(ErrVPNConnectFail, err)
	}

	for i := 0; i < pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(v.poll):
		}
		if v.IsConnected(ctx) {
			log.Info().Str("region", region).Msg("ExpressVPN connected")
			return true, nil
		}
	}

	return false, ErrVPNConnectFail
}

func (v *ExpressVPN) Disconnect(ctx context.Context) error {
	_, err := v.run(ctx, ctlBinary, "disconnect")
	return err
}

func (v *ExpressVPN) GetStatus(ctx context.Context) (string, error) {
	out, err := v.run(ctx, ctlBinary, "status")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
