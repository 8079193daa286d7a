package firecracker

import "time"

// Networking defaults. These must agree with whatever launched the VM so
// that CNI DEL finds the same attachment.
const (
	// DefaultBridgeName is the Linux bridge device for microVM networking.
	DefaultBridgeName = "fcbr0"

	// DefaultSubnet is the CIDR subnet for microVM IP allocation.
	DefaultSubnet = "10.168.0.0/24"

	// DefaultGateway is the gateway IP address on the bridge.
	DefaultGateway = "10.168.0.1"

	// DefaultNetworkName is the CNI network name looked up in the config dir.
	DefaultNetworkName = "reaper-fcnet"

	// CNIVersion is the CNI spec version used in the fallback conflist.
	CNIVersion = "1.0.0"

	// CNIIfName is the interface name inside the network namespace.
	CNIIfName = "eth0"

	// CNICacheDir is the directory for CNI result caching.
	CNICacheDir = "/var/lib/cni/cache"

	// NetNSRunDir is the directory for named network namespaces.
	NetNSRunDir = "/var/run/netns"

	// NetNSPrefix is the prefix for per-VM namespace names.
	NetNSPrefix = "fc-"
)

// Default CNI locations.
const (
	DefaultCNIBinDir    = "/opt/cni/bin"
	DefaultCNIConfigDir = "/etc/cni/conf.d"
)

// softStopTimeout bounds the API call that requests a guest reboot.
const softStopTimeout = 2 * time.Second

// teardownTimeout bounds one CNI DEL plus namespace removal when the caller
// supplies no earlier deadline.
const teardownTimeout = 5 * time.Second
