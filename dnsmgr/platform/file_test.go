//go:build (linux && !android) || freebsd

package platform

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

func TestFileConfiguratorSetAndCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 192.168.1.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := newFileConfiguratorAt(path)

	servers := []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("8.8.4.4"),
	}
	if err := f.Set(servers); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := f.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if len(got) != 2 || got[0] != servers[0] || got[1] != servers[1] {
		t.Errorf("Current() = %v, want %v", got, servers)
	}
}

func TestFileConfiguratorClearRestoresBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	original := []byte("# my resolv.conf\nnameserver 192.168.1.1\n")
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}

	f := newFileConfiguratorAt(path)

	if err := f.Set([]netip.Addr{netip.MustParseAddr("1.1.1.1")}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A second apply must not overwrite the backup of the pre-dnschanger
	// state.
	if err := f.Set([]netip.Addr{netip.MustParseAddr("9.9.9.9")}); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	if err := f.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != string(original) {
		t.Errorf("Clear() restored %q, want %q", restored, original)
	}

	if _, err := os.Stat(path + resolvConfBackupExt); !os.IsNotExist(err) {
		t.Error("backup file still present after Clear()")
	}
}

func TestFileConfiguratorClearWithoutBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 192.168.1.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := newFileConfiguratorAt(path)
	if err := f.Clear(); err != nil {
		t.Errorf("Clear() with no backup error = %v, want nil", err)
	}
}

func TestFileConfiguratorRejectsEmptyList(t *testing.T) {
	f := newFileConfiguratorAt(filepath.Join(t.TempDir(), "resolv.conf"))
	if err := f.Set(nil); err == nil {
		t.Error("Set(nil) error = nil, want error")
	}
}

func TestReadResolvConfServers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain nameservers",
			content: "nameserver 8.8.8.8\nnameserver 8.8.4.4\n",
			want:    []string{"8.8.8.8", "8.8.4.4"},
		},
		{
			name:    "comments and search lines skipped",
			content: "# managed\nsearch example.com\nnameserver 1.1.1.1\n",
			want:    []string{"1.1.1.1"},
		},
		{
			name:    "IPv6 with zone suffix",
			content: "nameserver fe80::1%eth0\n",
			want:    []string{"fe80::1"},
		},
		{
			name:    "malformed nameserver line ignored",
			content: "nameserver\nnameserver not-an-ip\nnameserver 9.9.9.9\n",
			want:    []string{"9.9.9.9"},
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "resolv.conf")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			got, err := readResolvConfServers(path)
			if err != nil {
				t.Fatalf("readResolvConfServers() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("readResolvConfServers() = %v, want %v", got, tt.want)
			}
			for i, a := range got {
				if a.String() != tt.want[i] {
					t.Errorf("server[%d] = %s, want %s", i, a, tt.want[i])
				}
			}
		})
	}
}
