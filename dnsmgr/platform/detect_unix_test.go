//go:build (linux && !android) || freebsd

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectManagerFromFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ManagerType
	}{
		{
			name:    "networkmanager signature",
			content: "# Generated by NetworkManager\nnameserver 192.168.1.1\n",
			want:    NetworkManagerManager,
		},
		{
			name:    "systemd resolved stub",
			content: "# This is /run/systemd/resolve/stub-resolv.conf managed by man:systemd-resolved(8).\n# Do not edit.\nnameserver 127.0.0.53\n",
			want:    SystemdResolvedManager,
		},
		{
			name:    "resolvconf signature",
			content: "# Dynamic resolv.conf(5) file for glibc resolver(3) generated by resolvconf(8)\n#     DO NOT EDIT THIS FILE BY HAND\nnameserver 10.0.0.1\n",
			want:    ResolvconfManager,
		},
		{
			name:    "plain file without signature",
			content: "nameserver 1.1.1.1\nnameserver 1.0.0.1\n",
			want:    FileManager,
		},
		{
			name:    "unsigned comment then servers",
			content: "# my own resolv.conf\nnameserver 8.8.8.8\n",
			want:    FileManager,
		},
		{
			name:    "empty file",
			content: "",
			want:    FileManager,
		},
		{
			name:    "blank lines before servers",
			content: "\n\nnameserver 9.9.9.9\n",
			want:    FileManager,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "resolv.conf")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if got := detectManagerFromFile(path); got != tt.want {
				t.Errorf("detectManagerFromFile() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectManagerFromMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	if got := detectManagerFromFile(path); got != UnknownManager {
		t.Errorf("detectManagerFromFile() = %s, want %s for a missing file", got, UnknownManager)
	}
}
