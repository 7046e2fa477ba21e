// Package ui implements the interactive menu surface as an explicit state
// machine, driven through an io.Reader/io.Writer pair so tests can feed
// canned input.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/dnschanger/dnschanger/dnsmgr"
	"github.com/dnschanger/dnschanger/providers"
)

// Controller is the slice of the DNS manager the menu needs.
type Controller interface {
	ListInterfaces() ([]string, error)
	CurrentDNS(iface string) ([]netip.Addr, error)
	Apply(iface string, values []string) error
	SetAutomatic(iface string) error
	Restore(iface string) error
	PendingRestore() bool
}

// state identifies the current step of the interactive flow.
type state int

const (
	stateSelectInterface state = iota
	stateMenu
	stateSelectProvider
	stateCustomEntry
	stateConfirmApply
	stateDone
)

// Options configures a Session.
type Options struct {
	// In and Out default to stdin/stdout when nil.
	In  io.Reader
	Out io.Writer

	// Interface preselects the network interface, skipping the selection
	// step.
	Interface string

	// Extra providers from the config file, shown after the built-ins.
	Extra []providers.Provider
}

// Session runs the interactive menu for one user.
type Session struct {
	ctl   Controller
	in    *bufio.Scanner
	out   io.Writer
	iface string
	extra []providers.Provider

	state state

	// pending apply, filled by the provider/custom steps
	pendingLabel string
	pendingAddrs []string
	pendingAuto  bool
}

// New returns a session over the given controller.
func New(ctl Controller, opts Options) *Session {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Session{
		ctl:   ctl,
		in:    bufio.NewScanner(opts.In),
		out:   opts.Out,
		iface: opts.Interface,
		extra: opts.Extra,
		state: stateSelectInterface,
	}
}

// Run drives the state machine until the user exits or input ends. Errors
// from individual actions are printed and the menu continues; only input
// exhaustion and interface selection failures end the session.
func (s *Session) Run() error {
	if s.iface != "" {
		s.state = stateMenu
	}

	for s.state != stateDone {
		var err error
		switch s.state {
		case stateSelectInterface:
			err = s.selectInterface()
		case stateMenu:
			err = s.menu()
		case stateSelectProvider:
			err = s.selectProvider()
		case stateCustomEntry:
			err = s.customEntry()
		case stateConfirmApply:
			err = s.confirmApply()
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Session) selectInterface() error {
	names, err := s.ctl.ListInterfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	if len(names) == 1 {
		s.iface = names[0]
		s.state = stateMenu
		return nil
	}

	fmt.Fprintln(s.out, "Network interfaces:")
	choice, err := s.choose(names, "Select an interface")
	if err != nil {
		return err
	}
	s.iface = names[choice]
	s.state = stateMenu
	return nil
}

func (s *Session) menu() error {
	fmt.Fprintln(s.out, "========================================")
	fmt.Fprintln(s.out, "          DNS Changer")
	fmt.Fprintln(s.out, "========================================")
	fmt.Fprintf(s.out, "Interface: %s\n", s.iface)
	if s.ctl.PendingRestore() {
		fmt.Fprintln(s.out, "Note: a previous DNS configuration is saved and can be restored.")
	}
	fmt.Fprintln(s.out)

	options := []string{
		"Select DNS provider",
		"Custom DNS",
		"Automatic DNS (router)",
		"Show current DNS",
		"Restore previous DNS",
		"Change interface",
		"Exit",
	}

	choice, err := s.choose(options, "Choose an option")
	if err != nil {
		return err
	}

	switch choice {
	case 0:
		s.state = stateSelectProvider
	case 1:
		s.state = stateCustomEntry
	case 2:
		s.pendingLabel = "Automatic (router)"
		s.pendingAddrs = nil
		s.pendingAuto = true
		s.state = stateConfirmApply
	case 3:
		s.showCurrent()
	case 4:
		s.restore()
	case 5:
		s.iface = ""
		s.state = stateSelectInterface
	case 6:
		fmt.Fprintln(s.out, "Goodbye!")
		s.state = stateDone
	}
	return nil
}

func (s *Session) selectProvider() error {
	list := append(providers.Builtin(), s.extra...)

	labels := make([]string, 0, len(list)+1)
	for _, p := range list {
		labels = append(labels, p.String())
	}
	labels = append(labels, "Back")

	choice, err := s.choose(labels, "Select DNS provider")
	if err != nil {
		return err
	}
	if choice == len(list) {
		s.state = stateMenu
		return nil
	}

	p := list[choice]
	s.pendingLabel = p.Name
	s.pendingAddrs = p.AddrStrings()
	s.pendingAuto = false
	s.state = stateConfirmApply
	return nil
}

func (s *Session) customEntry() error {
	primary, err := s.prompt("Enter primary DNS")
	if err != nil {
		return err
	}
	secondary, err := s.prompt("Enter secondary DNS (optional)")
	if err != nil {
		return err
	}

	values := []string{primary}
	if strings.TrimSpace(secondary) != "" {
		values = append(values, secondary)
	}

	// Validate before the confirm step so typos come straight back.
	if _, err := providers.ParseAddrs(values); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n\n", err)
		s.state = stateMenu
		return nil
	}

	s.pendingLabel = "custom"
	s.pendingAddrs = values
	s.pendingAuto = false
	s.state = stateConfirmApply
	return nil
}

func (s *Session) confirmApply() error {
	if s.pendingAuto {
		fmt.Fprintf(s.out, "Switch %s to automatic DNS?", s.iface)
	} else {
		fmt.Fprintf(s.out, "Set DNS on %s to %s (%s)?", s.iface, s.pendingLabel, strings.Join(s.pendingAddrs, ", "))
	}
	fmt.Fprint(s.out, " [y/N]: ")

	answer, err := s.readLine()
	if err != nil {
		return err
	}
	if !isYes(answer) {
		fmt.Fprintln(s.out, "Cancelled.")
		s.state = stateMenu
		return nil
	}

	if s.pendingAuto {
		err = s.ctl.SetAutomatic(s.iface)
	} else {
		err = s.ctl.Apply(s.iface, s.pendingAddrs)
	}
	s.reportResult(err, fmt.Sprintf("DNS set to %s", s.pendingLabel))
	s.state = stateMenu
	return nil
}

func (s *Session) showCurrent() {
	servers, err := s.ctl.CurrentDNS(s.iface)
	if err != nil {
		s.reportResult(err, "")
		return
	}
	if len(servers) == 0 {
		fmt.Fprintf(s.out, "No static DNS configured on %s (automatic)\n\n", s.iface)
		return
	}
	fmt.Fprintf(s.out, "Current DNS on %s:\n", s.iface)
	for _, server := range servers {
		fmt.Fprintf(s.out, "  %s\n", server)
	}
	fmt.Fprintln(s.out)
}

func (s *Session) restore() {
	err := s.ctl.Restore(s.iface)
	s.reportResult(err, "Previous DNS configuration restored")
}

// reportResult prints the outcome of an action. Permission problems get
// the sudo hint; everything else is printed and the menu continues.
func (s *Session) reportResult(err error, success string) {
	switch {
	case err == nil:
		fmt.Fprintf(s.out, "✅ %s\n\n", success)
	case errors.Is(err, dnsmgr.ErrPermissionDenied):
		fmt.Fprintln(s.out, "Error: permission denied. Re-run with elevated privileges (sudo) and try again.")
		fmt.Fprintln(s.out)
	default:
		fmt.Fprintf(s.out, "Error: %v\n\n", err)
	}
}

// choose prints a numbered list and reads a 1-based selection until the
// user enters a valid one.
func (s *Session) choose(options []string, promptText string) (int, error) {
	for i, opt := range options {
		fmt.Fprintf(s.out, "  %d) %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(s.out, "%s [1-%d]: ", promptText, len(options))
		line, err := s.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(s.out, "Invalid choice %q\n", strings.TrimSpace(line))
	}
}

func (s *Session) prompt(text string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", text)
	return s.readLine()
}

func (s *Session) readLine() (string, error) {
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.in.Text(), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
