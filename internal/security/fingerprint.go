package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// UnknownMachine is returned when not a single hardware signal could be
// collected. Callers decide policy; the verifier treats it as any other
// fingerprint, so a license issued for it would still bind correctly.
const UnknownMachine = "unknown-machine"

// FingerprintOverrideEnv overrides the computed fingerprint entirely.
// Intended for containers and test rigs where hardware identity is
// meaningless.
const FingerprintOverrideEnv = "NODELOCK_FINGERPRINT"

// DeviceFingerprint holds the composite identifier together with the
// signals that produced it, for diagnostics.
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Hostname    string    `json:"hostname"`
	MachineID   string    `json:"machine_id"`
	CPUID       string    `json:"cpu_id"`
	MACs        []string  `json:"macs"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FingerprintManager computes and caches the hardware fingerprint.
// Individual signals are best-effort: a missing signal is skipped, never
// fatal, so virtual machines and containers still get a deterministic
// (if weaker) composite.
type FingerprintManager struct {
	cache       *DeviceFingerprint
	cacheMutex  sync.RWMutex
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewFingerprintManager creates a fingerprint manager with caching.
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		cacheTTL: 1 * time.Hour,
	}
}

// Fingerprint returns the composite machine identifier. It never fails
// for missing signals; with zero signals it returns UnknownMachine.
func (fm *FingerprintManager) Fingerprint() string {
	return fm.Generate().Fingerprint
}

// Generate computes (or returns the cached) device fingerprint.
func (fm *FingerprintManager) Generate() *DeviceFingerprint {
	fm.cacheMutex.RLock()
	if fm.cache != nil && time.Now().Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.cacheMutex.RUnlock()
		return &cached
	}
	fm.cacheMutex.RUnlock()

	start := time.Now()
	fp := fm.generate()

	fm.cacheMutex.Lock()
	fm.cache = fp
	fm.cacheExpiry = time.Now().Add(fm.cacheTTL)
	fm.cacheMutex.Unlock()

	slog.Debug("device fingerprint generated",
		slog.String("fingerprint", fp.Fingerprint),
		slog.String("hostname", fp.Hostname),
		slog.String("cpu_id", fp.CPUID),
		slog.Int("mac_count", len(fp.MACs)),
		slog.Duration("generation_time", time.Since(start)),
	)
	return fp
}

func (fm *FingerprintManager) generate() *DeviceFingerprint {
	now := time.Now()

	if override := os.Getenv(FingerprintOverrideEnv); override != "" {
		return &DeviceFingerprint{
			Fingerprint: override,
			OS:          runtime.GOOS,
			Platform:    runtime.GOARCH,
			GeneratedAt: now,
		}
	}

	fp := &DeviceFingerprint{
		OS:          runtime.GOOS,
		Platform:    runtime.GOARCH,
		GeneratedAt: now,
	}

	var signals []string
	if hostname, err := getHostname(); err == nil {
		fp.Hostname = hostname
		signals = append(signals, "host:"+hostname)
	} else {
		slog.Warn("failed to get hostname, skipping signal", slog.String("error", err.Error()))
	}

	if machineID, err := getMachineID(); err == nil {
		fp.MachineID = machineID
		signals = append(signals, "machine:"+machineID)
	}

	if cpuID, err := getCPUID(); err == nil {
		fp.CPUID = cpuID
		signals = append(signals, "cpu:"+cpuID)
	}

	if macs, err := getMACAddresses(); err == nil && len(macs) > 0 {
		fp.MACs = macs
		signals = append(signals, "mac:"+strings.Join(macs, ","))
	} else if err != nil {
		slog.Warn("failed to enumerate network interfaces, skipping signal", slog.String("error", err.Error()))
	}

	if len(signals) == 0 {
		slog.Warn("no hardware signals available, using unknown machine sentinel")
		fp.Fingerprint = UnknownMachine
		return fp
	}

	// OS and architecture always feed the hash so a cloned disk moved to
	// a different platform does not keep its fingerprint.
	signals = append(signals, runtime.GOOS, runtime.GOARCH)

	hash := sha256.Sum256([]byte(strings.Join(signals, "|")))
	fp.Fingerprint = hex.EncodeToString(hash[:])
	return fp
}

// Matches compares the current fingerprint against a stored one.
func (fm *FingerprintManager) Matches(stored string) bool {
	return fm.Fingerprint() == stored
}

// ClearCache drops the cached fingerprint, forcing recomputation.
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()
	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}

// Components returns the raw signals for the operator-facing
// "show fingerprint" diagnostics view.
func (fm *FingerprintManager) Components() map[string]string {
	fp := fm.Generate()
	return map[string]string{
		"hostname":   fp.Hostname,
		"machine_id": fp.MachineID,
		"cpu_id":     fp.CPUID,
		"macs":       strings.Join(fp.MACs, ","),
		"os":         fp.OS,
		"platform":   fp.Platform,
	}
}

func getHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return hostname, nil
}

// getMachineID reads the platform UUID. On Linux this is the systemd
// machine-id, falling back to the dbus copy and then the DMI product
// UUID (readable only as root on most distributions).
func getMachineID() (string, error) {
	paths := []string{
		"/etc/machine-id",
		"/var/lib/dbus/machine-id",
		"/sys/class/dmi/id/product_uuid",
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		id := strings.ToLower(strings.TrimSpace(string(data)))
		if id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no machine id source available")
}

// getMACAddresses returns sorted, non-loopback hardware addresses.
// Sorting keeps the composite stable across interface enumeration order.
func getMACAddresses() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}
	var macs []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac != "" && mac != "00:00:00:00:00:00" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}

// getCPUID derives a stable CPU identity token per platform.
func getCPUID() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return shortHash(procID), nil
		}
		return shortHash(fmt.Sprintf("windows-%s-%s", runtime.GOARCH, os.Getenv("PROCESSOR_ARCHITECTURE"))), nil
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "cpu family") {
					return shortHash(line), nil
				}
			}
		}
		return shortHash("linux-" + runtime.GOARCH), nil
	case "darwin":
		return shortHash("darwin-" + runtime.GOARCH), nil
	default:
		return shortHash(runtime.GOOS + "-" + runtime.GOARCH), nil
	}
}

func shortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8])
}
