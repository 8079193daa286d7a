package firecracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestGenerateConfList(t *testing.T) {
	data, err := generateConfList("testnet")
	if err != nil {
		t.Fatalf("generateConfList: %v", err)
	}

	var parsed confListJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal conflist: %v", err)
	}

	if parsed.CNIVersion != CNIVersion {
		t.Errorf("cniVersion = %q, want %q", parsed.CNIVersion, CNIVersion)
	}
	if parsed.Name != "testnet" {
		t.Errorf("name = %q, want testnet", parsed.Name)
	}
	if len(parsed.Plugins) != 2 {
		t.Fatalf("plugins count = %d, want 2", len(parsed.Plugins))
	}
	if parsed.Plugins[0]["type"] != "bridge" {
		t.Errorf("plugin[0].type = %v, want bridge", parsed.Plugins[0]["type"])
	}
	if parsed.Plugins[0]["bridge"] != DefaultBridgeName {
		t.Errorf("plugin[0].bridge = %v, want %q", parsed.Plugins[0]["bridge"], DefaultBridgeName)
	}
	if parsed.Plugins[1]["type"] != "tc-redirect-tap" {
		t.Errorf("plugin[1].type = %v, want tc-redirect-tap", parsed.Plugins[1]["type"])
	}
}

func TestNetworkCleanerFallsBackToDefaultConfList(t *testing.T) {
	cfg := Config{
		CNIConfigDir: t.TempDir(),
		CNIBinDir:    t.TempDir(),
		NetworkName:  "missing-net",
	}

	nc, err := newNetworkCleaner(cfg, t.TempDir(), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("newNetworkCleaner: %v", err)
	}
	if nc.NetworkName() != "missing-net" {
		t.Errorf("NetworkName() = %q, want missing-net", nc.NetworkName())
	}
	if got := len(nc.confList.Plugins); got != 2 {
		t.Errorf("fallback conflist has %d plugins, want 2", got)
	}
}

func TestNetworkCleanerLoadsConfList(t *testing.T) {
	confDir := t.TempDir()
	conf := `{
  "cniVersion": "1.0.0",
  "name": "custom",
  "plugins": [{"type": "ptp"}]
}`
	if err := os.WriteFile(filepath.Join(confDir, "10-custom.conflist"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{CNIConfigDir: confDir, CNIBinDir: t.TempDir(), NetworkName: "custom"}
	nc, err := newNetworkCleaner(cfg, t.TempDir(), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("newNetworkCleaner: %v", err)
	}
	if len(nc.confList.Plugins) != 1 || nc.confList.Plugins[0].Network.Type != "ptp" {
		t.Errorf("loaded conflist plugins = %+v, want single ptp", nc.confList.Plugins)
	}
}

func TestTeardownRemovesSocketEvenWhenCNIFails(t *testing.T) {
	cfg := Config{CNIConfigDir: t.TempDir(), CNIBinDir: t.TempDir(), NetworkName: DefaultNetworkName}
	nc, err := newNetworkCleaner(cfg, t.TempDir(), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("newNetworkCleaner: %v", err)
	}

	socket := filepath.Join(t.TempDir(), "fc.sock")
	if err := os.WriteFile(socket, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	// The plugin directory is empty, so CNI DEL cannot find its plugins.
	err = nc.Teardown(context.Background(), Machine{ID: "vm1", SocketPath: socket})
	if err == nil {
		t.Fatal("Teardown succeeded with no CNI plugins installed")
	}
	if _, statErr := os.Stat(socket); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("socket still present after teardown: %v", statErr)
	}
	if nc.tornDown["vm1"] {
		t.Error("failed teardown recorded as complete")
	}
}

func TestDeleteNetNSMissingIsNoop(t *testing.T) {
	if err := deleteNetNS(context.Background(), t.TempDir(), "fc-absent"); err != nil {
		t.Errorf("deleteNetNS on missing namespace: %v", err)
	}
}

func TestDeleteNetNSHonoursContext(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fc-vm1"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := deleteNetNS(ctx, dir, "fc-vm1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("deleteNetNS with cancelled context = %v, want context.Canceled", err)
	}
}

func TestMachineNetNSPath(t *testing.T) {
	tests := []struct {
		name string
		m    Machine
		want string
	}{
		{"default", Machine{ID: "vm1"}, "/run/netns/fc-vm1"},
		{"named", Machine{ID: "vm1", NetNS: "custom"}, "/run/netns/custom"},
		{"absolute", Machine{ID: "vm1", NetNS: "/proc/42/ns/net"}, "/proc/42/ns/net"},
	}
	for _, tc := range tests {
		if got := tc.m.netnsPath("/run/netns"); got != tc.want {
			t.Errorf("%s: netnsPath = %q, want %q", tc.name, got, tc.want)
		}
	}
}
