package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/dnschanger/dnschanger/dnsmgr"
	"github.com/dnschanger/dnschanger/providers"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	mgr := dnsmgr.New(dnsmgr.Options{StateDir: t.TempDir()})
	extra := []providers.Provider{{
		Name:        "Internal",
		Description: "Corporate resolvers",
		Addrs:       []netip.Addr{netip.MustParseAddr("10.0.0.53")},
	}}
	return NewAPI("127.0.0.1:0", "test", mgr, extra)
}

func (s *API) testHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/apply", s.handleApply)
	mux.HandleFunc("/restore", s.handleRestore)
	return mux
}

func TestProvidersIncludesPresetsAndExtras(t *testing.T) {
	s := newTestAPI(t)

	rec := httptest.NewRecorder()
	s.testHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/providers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ProvidersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Custom || !resp.Automatic {
		t.Errorf("custom/automatic = %v/%v, want both true", resp.Custom, resp.Automatic)
	}

	names := make([]string, 0, len(resp.Providers))
	for _, p := range resp.Providers {
		names = append(names, p.Name)
	}
	for _, want := range []string{"Cloudflare", "Google", "Quad9", "OpenDNS", "Internal"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("provider %q missing from %v", want, names)
		}
	}
}

func TestStatusReportsVersion(t *testing.T) {
	s := newTestAPI(t)

	rec := httptest.NewRecorder()
	s.testHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want %q", resp.Version, "test")
	}
	if resp.PendingRestore {
		t.Error("pendingRestore = true on a fresh state dir")
	}
}

func TestApplyRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", "{not json", http.StatusBadRequest},
		{"unknown provider", `{"interface":"eth0","provider":"nope"}`, http.StatusBadRequest},
		{"invalid address", `{"interface":"eth0","addrs":["not-an-ip"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestAPI(t)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/apply", strings.NewReader(tt.body))
			s.testHandler().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Error("error body has no message")
			}
		})
	}
}

func TestRestoreWithoutRecordConflicts(t *testing.T) {
	s := newTestAPI(t)

	rec := httptest.NewRecorder()
	s.testHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/restore", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestAPI(t)
	h := s.testHandler()

	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/status"},
		{http.MethodPost, "/providers"},
		{http.MethodGet, "/apply"},
		{http.MethodGet, "/restore"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}

func TestWriteManagerErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dnsmgr.ErrInvalidAddress, http.StatusBadRequest},
		{dnsmgr.ErrInterfaceNotFound, http.StatusNotFound},
		{dnsmgr.ErrNoInterfacesFound, http.StatusNotFound},
		{dnsmgr.ErrPermissionDenied, http.StatusForbidden},
		{dnsmgr.ErrNothingToRestore, http.StatusConflict},
		{errors.New("backend exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeManagerError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("writeManagerError(%v) = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
