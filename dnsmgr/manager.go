// Package dnsmgr orchestrates reading and changing the system resolver
// configuration for one network interface through the per-OS backends in
// dnsmgr/platform.
package dnsmgr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/fosrl/newt/logger"

	"github.com/dnschanger/dnschanger/dnsmgr/platform"
)

// Event describes a completed configuration change, for status reporting
// and the /events stream.
type Event struct {
	Type      string    `json:"type"` // "apply", "automatic" or "restore"
	Interface string    `json:"interface"`
	Addrs     []string  `json:"addrs,omitempty"`
	Backend   string    `json:"backend"`
	Time      time.Time `json:"time"`
}

// Options configures a Manager.
type Options struct {
	// StateDir overrides the directory for the previous-configuration
	// record. Empty means the per-OS default.
	StateDir string

	// Verify enables a post-apply probe against the first applied server.
	Verify bool

	// VerifyTimeout bounds the probe. Zero means 3 seconds.
	VerifyTimeout time.Duration
}

// Manager serializes DNS configuration operations for interactive and API
// callers. All OS state is re-read on every call; nothing is cached.
type Manager struct {
	stateDir      string
	verify        bool
	verifyTimeout time.Duration

	// newConfigurator and checkIface are swapped out by tests.
	newConfigurator func(iface string) (platform.Configurator, error)
	checkIface      func(iface string) error

	mu       sync.Mutex
	previous *Record
	notify   func(Event)
}

// New returns a Manager with the given options.
func New(opts Options) *Manager {
	timeout := opts.VerifyTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Manager{
		stateDir:        opts.StateDir,
		verify:          opts.Verify,
		verifyTimeout:   timeout,
		newConfigurator: platform.NewConfigurator,
		checkIface:      checkInterfaceExists,
	}
}

// SetNotify registers a callback invoked after every successful change.
func (m *Manager) SetNotify(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

// ListInterfaces returns the non-loopback network interfaces in a stable
// order.
func (m *Manager) ListInterfaces() ([]string, error) {
	names, err := listInterfaces()
	if err != nil {
		return nil, errors.Join(ErrNoInterfacesFound, err)
	}
	if len(names) == 0 {
		return nil, ErrNoInterfacesFound
	}
	return names, nil
}

// CurrentDNS returns the resolver addresses configured for the interface
// right now.
func (m *Manager) CurrentDNS(iface string) ([]netip.Addr, error) {
	if err := m.checkInterface(iface); err != nil {
		return nil, err
	}

	cfg, err := m.newConfigurator(iface)
	if err != nil {
		return nil, classifyApplyError(err)
	}

	servers, err := cfg.Current()
	if err != nil {
		if isPermissionError(err) {
			return nil, errors.Join(ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("read current DNS for %s: %w", iface, err)
	}
	return servers, nil
}

// Apply validates the address list, captures the previous configuration,
// and writes the new servers through the platform backend. Validation
// failures never touch the OS.
func (m *Manager) Apply(iface string, values []string) error {
	addrs, err := validateAddrs(values)
	if err != nil {
		return err
	}

	if err := m.checkInterface(iface); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.newConfigurator(iface)
	if err != nil {
		return classifyApplyError(err)
	}

	prior := m.previous
	if err := m.capturePrevious(iface, cfg); err != nil {
		return err
	}

	if err := cfg.Set(addrs); err != nil {
		m.revertRecord(prior)
		return classifyApplyError(err)
	}

	logger.Info("Applied DNS %v to %s via %s", values, iface, cfg.Name())

	if m.verify {
		if err := VerifyServer(addrs[0], m.verifyTimeout); err != nil {
			logger.Warn("DNS server %s did not answer the verification probe: %v", addrs[0], err)
		} else {
			logger.Debug("DNS server %s answered the verification probe", addrs[0])
		}
	}

	m.emit(Event{Type: "apply", Interface: iface, Addrs: addrsToStrings(addrs), Backend: cfg.Name(), Time: time.Now()})
	return nil
}

// SetAutomatic clears any static DNS so the interface falls back to the
// DHCP/router-provided servers.
func (m *Manager) SetAutomatic(iface string) error {
	if err := m.checkInterface(iface); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.newConfigurator(iface)
	if err != nil {
		return classifyApplyError(err)
	}

	prior := m.previous
	if err := m.capturePrevious(iface, cfg); err != nil {
		return err
	}

	if err := cfg.Clear(); err != nil {
		m.revertRecord(prior)
		return classifyApplyError(err)
	}

	logger.Info("Switched %s to automatic DNS via %s", iface, cfg.Name())
	m.emit(Event{Type: "automatic", Interface: iface, Backend: cfg.Name(), Time: time.Now()})
	return nil
}

// Restore re-applies the configuration captured before the last apply. It
// prefers the in-memory record from this session and falls back to the
// persisted one, so restores work across invocations and crashes. An empty
// iface restores whatever interface the record names.
func (m *Manager) Restore(iface string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.previous
	if rec == nil {
		var err error
		rec, err = m.loadRecord()
		if err != nil {
			return fmt.Errorf("load previous configuration: %w", err)
		}
	}
	if rec == nil {
		return ErrNothingToRestore
	}
	if iface != "" && rec.Interface != iface {
		return fmt.Errorf("%w for interface %s (record is for %s)", ErrNothingToRestore, iface, rec.Interface)
	}

	if err := m.checkInterface(rec.Interface); err != nil {
		return err
	}

	cfg, err := m.newConfigurator(rec.Interface)
	if err != nil {
		return classifyApplyError(err)
	}

	if len(rec.PreviousDNS) == 0 {
		// The interface had no static DNS before we touched it.
		if err := cfg.Clear(); err != nil {
			return classifyApplyError(err)
		}
	} else {
		addrs, err := validateAddrs(rec.PreviousDNS)
		if err != nil {
			return fmt.Errorf("previous configuration is unusable: %w", err)
		}
		if err := cfg.Set(addrs); err != nil {
			return classifyApplyError(err)
		}
	}

	logger.Info("Restored previous DNS %v on %s via %s", rec.PreviousDNS, rec.Interface, cfg.Name())

	m.previous = nil
	if err := m.clearRecord(); err != nil {
		logger.Warn("Failed to remove state file: %v", err)
	}

	m.emit(Event{Type: "restore", Interface: rec.Interface, Addrs: rec.PreviousDNS, Backend: cfg.Name(), Time: time.Now()})
	return nil
}

// Previous returns the record captured by the last apply in this session,
// or the persisted one from an earlier session. Nil when there is nothing
// to restore.
func (m *Manager) Previous() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.previous != nil {
		rec := *m.previous
		return &rec
	}
	rec, err := m.loadRecord()
	if err != nil {
		return nil
	}
	return rec
}

// capturePrevious snapshots the current configuration into memory and onto
// disk before a write. Failing to read the current servers is tolerated
// (the record stores an empty list, which restores to automatic), but a
// failure to persist aborts the apply: without the record an interrupted
// session could not be undone.
func (m *Manager) capturePrevious(iface string, cfg platform.Configurator) error {
	current, err := cfg.Current()
	if err != nil {
		logger.Warn("Could not read current DNS on %s before apply: %v", iface, err)
		current = nil
	}

	rec := &Record{
		Interface:   iface,
		PreviousDNS: addrsToStrings(current),
		Backend:     cfg.Name(),
	}
	if err := m.saveRecord(rec); err != nil {
		return errors.Join(ErrApplyFailed, fmt.Errorf("save previous configuration: %w", err))
	}
	m.previous = rec
	return nil
}

// revertRecord puts the record back to its pre-capture state after a
// failed write. Without this the state file would claim a pending restore
// for a change that never reached the OS.
func (m *Manager) revertRecord(prior *Record) {
	m.previous = prior
	if prior == nil {
		if err := m.clearRecord(); err != nil {
			logger.Warn("Could not remove stale previous-configuration record: %v", err)
		}
		return
	}
	if err := m.saveRecord(prior); err != nil {
		logger.Warn("Could not rewrite previous-configuration record: %v", err)
	}
}

func (m *Manager) emit(ev Event) {
	if m.notify != nil {
		m.notify(ev)
	}
}

func (m *Manager) checkInterface(iface string) error {
	return m.checkIface(iface)
}

// checkInterfaceExists verifies the identifier names a real interface.
func checkInterfaceExists(iface string) error {
	if strings.TrimSpace(iface) == "" {
		return fmt.Errorf("%w: empty interface name", ErrInterfaceNotFound)
	}
	if _, err := net.InterfaceByName(iface); err != nil {
		return fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
	}
	return nil
}

// validateAddrs parses the textual address list, rejecting the whole list
// on the first invalid entry.
func validateAddrs(values []string) ([]netip.Addr, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty address list", ErrInvalidAddress)
	}

	addrs := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%w: blank entry in address list", ErrInvalidAddress)
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, v)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func addrsToStrings(addrs []netip.Addr) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
