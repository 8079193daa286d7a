package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// JobSchemaVersion is the schema_version every job file must carry.
const JobSchemaVersion = "reaper.job@0.1.0"

// ErrSchemaVersion is returned when a job file carries an unexpected schema version.
var ErrSchemaVersion = errors.New("job schema version mismatch")

// Backend identifies the execution technology hosting a workload.
type Backend string

// Backend tags.
const (
	BackendAppleContainer Backend = "apple-container"
	BackendVZ             Backend = "vz"
	BackendDocker         Backend = "docker"
	BackendPodman         Backend = "podman"
	BackendFirecrackerCtr Backend = "firecracker-ctr"
	BackendFirecrackerVMM Backend = "firecracker-vmm"
)

// Backends lists every known backend tag in display order.
var Backends = []Backend{
	BackendAppleContainer,
	BackendVZ,
	BackendDocker,
	BackendPodman,
	BackendFirecrackerCtr,
	BackendFirecrackerVMM,
}

var backendAliases = map[string]Backend{
	"apple-container": BackendAppleContainer,
	"container":       BackendAppleContainer,
	"vz":              BackendVZ,
	"docker":          BackendDocker,
	"podman":          BackendPodman,
	"firecracker-ctr": BackendFirecrackerCtr,
	"fc-ctr":          BackendFirecrackerCtr,
	"firecracker":     BackendFirecrackerCtr,
	"firecracker-vmm": BackendFirecrackerVMM,
	"fc-vmm":          BackendFirecrackerVMM,
}

// ParseBackend resolves a backend tag, accepting the short aliases.
func ParseBackend(s string) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if b, ok := backendAliases[key]; ok {
		return b, nil
	}
	names := make([]string, len(Backends))
	for i, b := range Backends {
		names[i] = string(b)
	}
	return "", fmt.Errorf("invalid backend %q (expected one of: %s)", s, strings.Join(names, ", "))
}

// PIDBased reports whether workloads on this backend can only be stopped
// by signaling a host process.
func (b Backend) PIDBased() bool {
	return b == BackendVZ || b == BackendFirecrackerVMM
}

// UnmarshalJSON accepts any alias understood by ParseBackend.
func (b *Backend) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("backend must be a string: %w", err)
	}
	parsed, err := ParseBackend(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// CtrJob carries per-job containerd connection settings for firecracker-ctr.
type CtrJob struct {
	Bin       string `json:"bin"`
	Address   string `json:"address"`
	Namespace string `json:"namespace"`
}

// FirecrackerJob locates the Firecracker VMM that hosts a workload.
type FirecrackerJob struct {
	// SocketPath is the VMM API socket used for Ctrl-Alt-Del at soft-stop.
	SocketPath string `json:"socket_path"`

	// NetNS is the network namespace name created for the VM, if any.
	NetNS string `json:"netns,omitempty"`
}

// Job describes a workload that must be stopped by its deadline.
// It is owned by the caller and never modified by the reaper.
type Job struct {
	SchemaVersion  string          `json:"schema_version"`
	RunID          string          `json:"run_id"`
	Backend        Backend         `json:"backend"`
	ContainerID    string          `json:"container_id"`
	PID            *int            `json:"pid,omitempty"`
	CreatedUnixMS  int64           `json:"created_unix_ms"`
	DeadlineUnixMS int64           `json:"deadline_unix_ms"`
	GraceMS        int64           `json:"grace_ms"`
	CleanupMS      int64           `json:"cleanup_ms"`
	Ctr            *CtrJob         `json:"ctr,omitempty"`
	Firecracker    *FirecrackerJob `json:"firecracker,omitempty"`
	StateDir       string          `json:"state_dir,omitempty"`
}

// Validate checks the fields every backend needs.
func (j *Job) Validate() error {
	if j.Backend == "" {
		return errors.New("backend is required")
	}
	if _, err := ParseBackend(string(j.Backend)); err != nil {
		return err
	}
	if !j.Backend.PIDBased() && j.ContainerID == "" {
		return fmt.Errorf("container_id is required for backend %s", j.Backend)
	}
	if j.PID != nil && *j.PID <= 0 {
		return fmt.Errorf("pid must be positive, got %d", *j.PID)
	}
	if j.DeadlineUnixMS <= 0 {
		return errors.New("deadline_unix_ms is required")
	}
	if j.GraceMS < 0 || j.CleanupMS < 0 {
		return errors.New("grace_ms and cleanup_ms must not be negative")
	}
	return nil
}

// ReadJobFile loads and validates a job file written by the launcher.
func ReadJobFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file %s: %w", path, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}

	if job.SchemaVersion != JobSchemaVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrSchemaVersion, JobSchemaVersion, job.SchemaVersion)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	return &job, nil
}
