package security

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// FallbackIdentity is hashed when no hardware identity source succeeds
const FallbackIdentity = "fallback-hardware-id"

const (
	boardSerialPath    = "/sys/class/dmi/id/board_serial"
	identityCmdTimeout = 5 * time.Second
	zeroMAC            = "00:00:00:00:00:00"
)

// ErrNoIdentity is returned by an IdentitySource that has nothing to offer on this machine
var ErrNoIdentity = errors.New("no hardware identity available")

// IdentitySource yields a stable raw identity string for the current machine
type IdentitySource interface {
	Name() string
	Identity(ctx context.Context) (string, error)
}

// HashIdentity turns a raw identity into the 16 hex character fingerprint
func HashIdentity(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:16]
}

// CommandRunner executes an external program and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// BoardSerial reads the motherboard or platform serial number.
// On Linux board_serial is readable by root only, so an unprivileged process
// falls through to the next source and computes a different fingerprint than
// the same binary run under sudo. Run activation and the daemon as the same user.
type BoardSerial struct {
	GOOS     string
	Run      CommandRunner
	ReadFile func(string) ([]byte, error)
}

// NewBoardSerial returns a BoardSerial bound to the running OS
func NewBoardSerial() *BoardSerial {
	return &BoardSerial{GOOS: runtime.GOOS, Run: execRunner, ReadFile: os.ReadFile}
}

// Name implements IdentitySource
func (b *BoardSerial) Name() string { return "board_serial" }

// Identity implements IdentitySource
func (b *BoardSerial) Identity(ctx context.Context) (string, error) {
	switch b.GOOS {
	case "windows":
		return b.windows(ctx)
	case "linux":
		data, err := b.ReadFile(boardSerialPath)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
		}
		serial := strings.TrimSpace(string(data))
		if serial == "" {
			return "", ErrNoIdentity
		}
		return serial, nil
	case "darwin":
		return b.darwin(ctx)
	default:
		return "", ErrNoIdentity
	}
}

func (b *BoardSerial) windows(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, identityCmdTimeout)
	defer cancel()

	out, err := b.Run(ctx, "wmic", "baseboard", "get", "serialnumber")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.EqualFold(line, "SerialNumber") {
			continue
		}
		return line, nil
	}
	return "", ErrNoIdentity
}

func (b *BoardSerial) darwin(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, identityCmdTimeout)
	defer cancel()

	out, err := b.Run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "IOPlatformSerialNumber") {
			continue
		}
		// "IOPlatformSerialNumber" = "C02XXXXXXX"
		parts := strings.Split(line, "\"")
		if len(parts) >= 4 && parts[3] != "" {
			return parts[3], nil
		}
	}
	return "", ErrNoIdentity
}

// NetworkIdentity combines the primary MAC address with the hostname
type NetworkIdentity struct {
	Interfaces func() ([]net.Interface, error)
	Hostname   func() (string, error)
}

// NewNetworkIdentity returns a NetworkIdentity reading the live system
func NewNetworkIdentity() *NetworkIdentity {
	return &NetworkIdentity{Interfaces: net.Interfaces, Hostname: os.Hostname}
}

// Name implements IdentitySource
func (n *NetworkIdentity) Name() string { return "mac_hostname" }

// Identity implements IdentitySource
func (n *NetworkIdentity) Identity(ctx context.Context) (string, error) {
	mac, err := n.primaryMAC(ctx)
	if err != nil {
		return "", err
	}
	hostname, err := n.Hostname()
	if err != nil || hostname == "" {
		return "", fmt.Errorf("%w: hostname unavailable", ErrNoIdentity)
	}
	return mac + "-" + hostname, nil
}

// primaryMAC prefers the first up, non-loopback interface and falls back to any interface with an address
func (n *NetworkIdentity) primaryMAC(ctx context.Context) (string, error) {
	interfaces, err := n.Interfaces()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != zeroMAC {
			slog.DebugContext(ctx, "MAC address found",
				slog.String("interface", iface.Name),
				slog.String("flags", iface.Flags.String()),
			)
			return mac, nil
		}
	}

	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != zeroMAC {
			slog.WarnContext(ctx, "Using fallback MAC address",
				slog.String("interface", iface.Name),
			)
			return mac, nil
		}
	}

	return "", fmt.Errorf("%w: no valid MAC address found", ErrNoIdentity)
}

// FingerprintProvider computes the machine fingerprint once and caches it.
// Sources are tried in order; the first non-empty identity wins.
type FingerprintProvider struct {
	sources []IdentitySource
	logger  *slog.Logger

	mu          sync.Mutex
	fingerprint string
	source      string
}

// NewFingerprintProvider creates a provider. With no sources it uses the
// board serial followed by MAC plus hostname.
func NewFingerprintProvider(logger *slog.Logger, sources ...IdentitySource) *FingerprintProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if len(sources) == 0 {
		sources = []IdentitySource{NewBoardSerial(), NewNetworkIdentity()}
	}
	return &FingerprintProvider{
		sources: sources,
		logger:  logger.With(slog.String("component", "fingerprint")),
	}
}

// Fingerprint returns the cached fingerprint, computing it on first use
func (p *FingerprintProvider) Fingerprint(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fingerprint != "" {
		return p.fingerprint
	}

	identity, source := FallbackIdentity, "fallback"
	for _, s := range p.sources {
		id, err := s.Identity(ctx)
		if err != nil || strings.TrimSpace(id) == "" {
			p.logger.DebugContext(ctx, "identity source unavailable",
				slog.String("source", s.Name()),
				slog.Any("error", err),
			)
			continue
		}
		identity, source = id, s.Name()
		break
	}

	if source == "fallback" {
		p.logger.WarnContext(ctx, "no hardware identity found, using fallback fingerprint")
	}

	p.fingerprint = HashIdentity(identity)
	p.source = source
	p.logger.InfoContext(ctx, "hardware fingerprint computed",
		slog.String("source", source),
		slog.String("fingerprint", p.fingerprint),
	)
	return p.fingerprint
}

// Source names the identity source behind the cached fingerprint, or "" before the first call
func (p *FingerprintProvider) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Reset drops the cached fingerprint
func (p *FingerprintProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fingerprint = ""
	p.source = ""
}
