package firecracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containernetworking/cni/libcni"
)

// NetworkCleaner removes the CNI attachment and network namespace of
// microVMs that were launched elsewhere.
type NetworkCleaner struct {
	cniConfig *libcni.CNIConfig
	confList  *libcni.NetworkConfigList
	netnsDir  string
	logger    *slog.Logger

	mu       sync.Mutex
	tornDown map[string]bool // vmID → teardown succeeded
}

// NewNetworkCleaner loads the named conflist from cfg.CNIConfigDir. When no
// such conflist exists it falls back to the default bridge network.
func NewNetworkCleaner(cfg Config, logger *slog.Logger) (*NetworkCleaner, error) {
	return newNetworkCleaner(cfg, CNICacheDir, NetNSRunDir, logger)
}

func newNetworkCleaner(cfg Config, cacheDir, netnsDir string, logger *slog.Logger) (*NetworkCleaner, error) {
	confList, err := loadConfList(cfg)
	if err != nil {
		return nil, err
	}

	return &NetworkCleaner{
		cniConfig: libcni.NewCNIConfigWithCacheDir([]string{cfg.CNIBinDir}, cacheDir, nil),
		confList:  confList,
		netnsDir:  netnsDir,
		logger:    logger,
		tornDown:  make(map[string]bool),
	}, nil
}

func loadConfList(cfg Config) (*libcni.NetworkConfigList, error) {
	confList, err := libcni.LoadConfList(cfg.CNIConfigDir, cfg.NetworkName)
	if err == nil {
		return confList, nil
	}

	var notFound libcni.NotFoundError
	var noConfigs libcni.NoConfigsFoundError
	if !errors.As(err, &notFound) && !errors.As(err, &noConfigs) {
		return nil, fmt.Errorf("load CNI conflist %s: %w", cfg.NetworkName, err)
	}

	confBytes, err := generateConfList(cfg.NetworkName)
	if err != nil {
		return nil, fmt.Errorf("generate CNI conflist: %w", err)
	}
	confList, err = libcni.ConfListFromBytes(confBytes)
	if err != nil {
		return nil, fmt.Errorf("parse CNI conflist: %w", err)
	}
	return confList, nil
}

// NetworkName returns the CNI network torn down by this cleaner.
func (nc *NetworkCleaner) NetworkName() string {
	return nc.confList.Name
}

// Teardown runs CNI DEL for the VM, deletes its network namespace and
// removes its API socket. Every step is attempted; the first error is
// returned. Once a teardown has fully succeeded later calls are no-ops.
func (nc *NetworkCleaner) Teardown(ctx context.Context, m Machine) error {
	nc.mu.Lock()
	if nc.tornDown[m.ID] {
		nc.mu.Unlock()
		return nil
	}
	nc.mu.Unlock()

	start := time.Now()
	nsPath := m.netnsPath(nc.netnsDir)

	rtConf := &libcni.RuntimeConf{
		ContainerID: m.ID,
		NetNS:       nsPath,
		IfName:      CNIIfName,
	}

	var firstErr error
	if err := nc.cniConfig.DelNetworkList(ctx, nc.confList, rtConf); err != nil {
		firstErr = fmt.Errorf("CNI DEL for %s: %w", m.ID, err)
		nc.logger.Warn("CNI DEL failed", "vm_id", m.ID, "error", err)
	}

	if filepath.Dir(nsPath) == nc.netnsDir {
		if err := deleteNetNS(ctx, nc.netnsDir, filepath.Base(nsPath)); err != nil {
			nc.logger.Warn("netns cleanup failed", "vm_id", m.ID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete netns for %s: %w", m.ID, err)
			}
		}
	}

	if m.SocketPath != "" {
		if err := os.Remove(m.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove API socket for %s: %w", m.ID, err)
			}
		}
	}

	teardownDuration.Observe(time.Since(start).Seconds())
	if firstErr != nil {
		teardownErrorsTotal.Inc()
		return firstErr
	}

	nc.mu.Lock()
	nc.tornDown[m.ID] = true
	nc.mu.Unlock()

	nc.logger.Info("network teardown complete", "vm_id", m.ID, "namespace", nsPath)
	return nil
}

// confListJSON is the structure for generating the CNI conflist JSON.
type confListJSON struct {
	CNIVersion string           `json:"cniVersion"`
	Name       string           `json:"name"`
	Plugins    []map[string]any `json:"plugins"`
}

// generateConfList returns the default bridge + tc-redirect-tap conflist.
func generateConfList(name string) ([]byte, error) {
	confList := confListJSON{
		CNIVersion: CNIVersion,
		Name:       name,
		Plugins: []map[string]any{
			{
				"type":      "bridge",
				"bridge":    DefaultBridgeName,
				"isGateway": true,
				"ipMasq":    true,
				"ipam": map[string]any{
					"type":    "host-local",
					"subnet":  DefaultSubnet,
					"gateway": DefaultGateway,
				},
			},
			{
				"type": "tc-redirect-tap",
			},
		},
	}

	data, err := json.MarshalIndent(confList, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal conflist: %w", err)
	}
	return data, nil
}

// deleteNetNS removes a named network namespace.
// Returns nil if the namespace does not exist.
func deleteNetNS(ctx context.Context, dir, name string) error {
	nsPath := filepath.Join(dir, name)
	if _, err := os.Stat(nsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat netns %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete netns %s: %w", name, err)
	}
	cmd := exec.CommandContext(ctx, "ip", "netns", "delete", name)
	cmd.WaitDelay = time.Second
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ip netns delete %s: %s: %w", name, strings.TrimSpace(string(output)), err)
	}
	return nil
}
