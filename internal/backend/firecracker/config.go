package firecracker

import "os"

// Environment variable names for Firecracker configuration.
const (
	envCNIConfigDir = "REAPER_FC_CNI_CONFIG_DIR"
	envCNIBinDir    = "REAPER_FC_CNI_BIN_DIR"
	envCNINetwork   = "REAPER_FC_CNI_NETWORK"
)

// Config holds configuration for tearing down Firecracker microVMs.
type Config struct {
	// CNIConfigDir is searched for a conflist named NetworkName.
	CNIConfigDir string

	// CNIBinDir holds the CNI plugin binaries.
	CNIBinDir string

	// NetworkName is the CNI network the VMs were attached to.
	NetworkName string
}

// LoadConfig reads Firecracker configuration from environment variables,
// applying defaults for values not set.
func LoadConfig() Config {
	cfg := Config{
		CNIConfigDir: DefaultCNIConfigDir,
		CNIBinDir:    DefaultCNIBinDir,
		NetworkName:  DefaultNetworkName,
	}

	if v := os.Getenv(envCNIConfigDir); v != "" {
		cfg.CNIConfigDir = v
	}
	if v := os.Getenv(envCNIBinDir); v != "" {
		cfg.CNIBinDir = v
	}
	if v := os.Getenv(envCNINetwork); v != "" {
		cfg.NetworkName = v
	}

	return cfg
}
