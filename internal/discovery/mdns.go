// Package discovery advertises the gatekeeper API on the local network
// over mDNS/DNS-SD so operator consoles can find it without configuration.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service advertised.
	ServiceType = "_gatekeeper._tcp"
	domain      = "local."

	defaultInstance = "Gatekeeper"
	maxLabelLength  = 63
)

// Logger is the logging dependency.
type Logger interface {
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// server is the registered advertisement.
type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string) (server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string) (server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, nil)
}

// Options describes what to advertise.
type Options struct {
	// Instance is the human readable service name. Defaults to
	// "Gatekeeper (<hostname>)".
	Instance string
	Port     int
	Version  string
	TLS      bool
	// AuthRequired tells clients whether they need to log in first.
	AuthRequired bool
}

// Advertiser publishes the API service record until shut down.
type Advertiser struct {
	opts     Options
	register registerFunc
	logger   Logger

	mu     sync.Mutex
	server server
}

// NewAdvertiser creates a stopped Advertiser.
func NewAdvertiser(opts Options) (*Advertiser, error) {
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", opts.Port)
	}
	if strings.TrimSpace(opts.Instance) == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			opts.Instance = defaultInstance
		} else {
			opts.Instance = fmt.Sprintf("%s (%s)", defaultInstance, host)
		}
	}
	opts.Instance = sanitizeInstance(opts.Instance)
	return &Advertiser{opts: opts, register: zeroconfRegister, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (a *Advertiser) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string {
	return a.opts.Instance
}

// TXT returns the TXT records published with the service.
func (a *Advertiser) TXT() []string {
	return []string{
		"api=/api",
		fmt.Sprintf("version=%s", a.opts.Version),
		fmt.Sprintf("tls=%d", boolToInt(a.opts.TLS)),
		fmt.Sprintf("auth=%d", boolToInt(a.opts.AuthRequired)),
	}
}

// Start registers the service. Starting twice is an error.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return errors.New("discovery: already advertising")
	}
	srv, err := a.register(a.opts.Instance, ServiceType, domain, a.opts.Port, a.TXT())
	if err != nil {
		return fmt.Errorf("discovery: registering %s: %w", ServiceType, err)
	}
	a.server = srv
	a.logger.Info("mDNS advertisement started", "instance", a.opts.Instance, "port", a.opts.Port)
	return nil
}

// Shutdown withdraws the advertisement. Safe to call when not started.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("mDNS advertisement stopped")
}

// sanitizeInstance makes name a valid single DNS-SD instance label.
func sanitizeInstance(name string) string {
	r := strings.NewReplacer("\n", " ", "\r", " ", ".", " ", "_", " ")
	cleaned := strings.Join(strings.Fields(r.Replace(name)), " ")
	if cleaned == "" {
		cleaned = defaultInstance
	}
	if runes := []rune(cleaned); len(runes) > maxLabelLength {
		cleaned = string(runes[:maxLabelLength])
	}
	return cleaned
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
