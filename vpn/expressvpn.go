package vpn

import (
	"errors"
	"log"
	"os/exec"
	"strings"
	"time"

	"shopmon/config"
)

var (
	ErrVPNNotConnected = errors.New("VPN not connected")
	ErrVPNConnectFail  = errors.New("failed to connect VPN")
	ErrCtlNotFound     = errors.New("expressvpnctl not found in PATH")
)

// ExpressVPN shells out to expressvpnctl for egress posture. All
// operations degrade to errors when the binary is absent; the daemon
// treats that as a warning, not a fault.
type ExpressVPN struct {
	cfg config.ExpressVPNConfig
}

func NewExpressVPN(cfg config.ExpressVPNConfig) *ExpressVPN {
	return &ExpressVPN{cfg: cfg}
}

func (v *ExpressVPN) Available() bool {
	_, err := exec.LookPath("expressvpnctl")
	return err == nil
}

func (v *ExpressVPN) IsConnected() bool {
	out, err := exec.Command("expressvpnctl", "status").Output()
	if err != nil {
		return false
	}
	status := strings.ToLower(string(out))
	return strings.Contains(status, "connected") && !strings.Contains(status, "disconnected")
}

// Connect honors the AutoConnect setting; an unconfigured VPN is left
// alone.
func (v *ExpressVPN) Connect() error {
	if v.IsConnected() {
		return nil
	}
	if !v.cfg.AutoConnect {
		return ErrVPNNotConnected
	}
	return v.connect(v.cfg.Region)
}

func (v *ExpressVPN) EnsureConnected() error {
	if v.IsConnected() {
		return nil
	}
	return v.Connect()
}

// Rotate drops the current tunnel and reconnects, moving the exit node.
// Unlike Connect it runs even without AutoConnect, since it only ever
// happens on an explicit operator command.
func (v *ExpressVPN) Rotate() error {
	if !v.Available() {
		return ErrCtlNotFound
	}
	log.Println("VPN: rotating exit node")
	if err := v.Disconnect(); err != nil {
		log.Printf("VPN: disconnect before rotate: %v", err)
	}
	return v.connect(v.cfg.Region)
}

func (v *ExpressVPN) Disconnect() error {
	return exec.Command("expressvpnctl", "disconnect").Run()
}

func (v *ExpressVPN) GetStatus() (string, error) {
	out, err := exec.Command("expressvpnctl", "status").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (v *ExpressVPN) connect(region string) error {
	if region == "" {
		region = "smart"
	}

	cmd := exec.Command("expressvpnctl", "connect", region)
	if err := cmd.Run(); err != nil {
		return ErrVPNConnectFail
	}

	for i := 0; i < 30; i++ {
		time.Sleep(time.Second)
		if v.IsConnected() {
			return nil
		}
	}

	return ErrVPNConnectFail
}
