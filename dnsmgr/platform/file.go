//go:build (linux && !android) || freebsd

package platform

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultResolvConfPath = "/etc/resolv.conf"
	resolvConfBackupExt   = ".dnschanger.bak"
	resolvConfHeader      = "# Generated by dnschanger. Original saved with " + resolvConfBackupExt + " extension.\n"
)

// FileConfigurator manages DNS by rewriting /etc/resolv.conf directly. Last
// resort when no DNS manager is running. The original file is kept as a
// sibling backup so Clear can put it back byte for byte.
type FileConfigurator struct {
	path string
}

// NewFileConfigurator returns a configurator over /etc/resolv.conf.
func NewFileConfigurator() (*FileConfigurator, error) {
	return &FileConfigurator{path: defaultResolvConfPath}, nil
}

// newFileConfiguratorAt exists for tests that point the backend at a
// throwaway file.
func newFileConfiguratorAt(path string) *FileConfigurator {
	return &FileConfigurator{path: path}
}

// Name returns the backend name.
func (f *FileConfigurator) Name() string {
	return "file"
}

// Current parses nameserver lines out of the resolv.conf file.
func (f *FileConfigurator) Current() ([]netip.Addr, error) {
	return readResolvConfServers(f.path)
}

// Set backs up the current file once, then atomically replaces it with one
// listing only the given servers. Write goes to a temp file in the same
// directory followed by rename, so a crash can never leave a torn file.
func (f *FileConfigurator) Set(servers []netip.Addr) error {
	if len(servers) == 0 {
		return fmt.Errorf("no DNS servers provided")
	}

	if err := f.backupOnce(); err != nil {
		return err
	}

	var content strings.Builder
	content.WriteString(resolvConfHeader)
	for _, server := range servers {
		fmt.Fprintf(&content, "nameserver %s\n", server)
	}

	if err := atomicWriteFile(f.path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

// Clear restores the backed-up resolv.conf if one exists and removes the
// backup. Without a backup there is nothing of ours to undo.
func (f *FileConfigurator) Clear() error {
	backup := f.path + resolvConfBackupExt

	original, err := os.ReadFile(backup)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read backup: %w", err)
	}

	if err := atomicWriteFile(f.path, original, 0644); err != nil {
		return fmt.Errorf("restore %s: %w", f.path, err)
	}

	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

// backupOnce saves the current file next to itself unless a backup from an
// earlier Set is already there. Keeping the first backup preserves the
// pre-dnschanger state across repeated applies.
func (f *FileConfigurator) backupOnce() error {
	backup := f.path + resolvConfBackupExt

	if _, err := os.Stat(backup); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat backup: %w", err)
	}

	original, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	if err := os.WriteFile(backup, original, 0644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readResolvConfServers collects the nameserver entries from a resolv.conf
// style file.
func readResolvConfServers(path string) ([]netip.Addr, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var servers []netip.Addr
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Scoped addresses carry a %zone suffix.
		value, _, _ := strings.Cut(fields[1], "%")
		if addr, err := netip.ParseAddr(value); err == nil {
			servers = append(servers, addr)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return servers, nil
}
