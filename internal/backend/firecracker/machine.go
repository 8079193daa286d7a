package firecracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	fcsdk "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/sirupsen/logrus"

	"github.com/seantiz/reaper/internal/model"
)

var errNoSocket = errors.New("no API socket configured")

// Machine identifies a microVM launched outside the reaper.
type Machine struct {
	// ID is the CNI container ID and the default namespace suffix.
	ID string

	// SocketPath is the Firecracker API socket, if known.
	SocketPath string

	// NetNS is a namespace name under the netns run dir or an absolute path.
	// Empty means NetNSPrefix + ID.
	NetNS string
}

// MachineFromJob extracts the VM identity from a job descriptor.
func MachineFromJob(job *model.Job) Machine {
	m := Machine{ID: job.ContainerID}
	if m.ID == "" {
		m.ID = job.RunID
	}
	if job.Firecracker != nil {
		m.SocketPath = job.Firecracker.SocketPath
		m.NetNS = job.Firecracker.NetNS
	}
	return m
}

func (m Machine) netnsPath(dir string) string {
	switch {
	case m.NetNS == "":
		return filepath.Join(dir, NetNSPrefix+m.ID)
	case strings.ContainsRune(m.NetNS, '/'):
		return m.NetNS
	default:
		return filepath.Join(dir, m.NetNS)
	}
}

// ctrlAltDelFunc asks the VMM behind socketPath to reboot its guest, which
// Firecracker treats as a shutdown request.
type ctrlAltDelFunc func(ctx context.Context, socketPath string) error

func sendCtrlAltDel(ctx context.Context, socketPath string) error {
	// The SDK logs through logrus; we log through slog.
	fcLogger := logrus.New()
	fcLogger.SetOutput(io.Discard)

	client := fcsdk.NewClient(socketPath, logrus.NewEntry(fcLogger), false)
	_, err := client.CreateSyncAction(ctx, &models.InstanceActionInfo{
		ActionType: fcsdk.String(models.InstanceActionInfoActionTypeSendCtrlAltDel),
	})
	return err
}

// Manager stops and cleans up Firecracker microVMs on the PID path.
type Manager struct {
	network    *NetworkCleaner
	logger     *slog.Logger
	ctrlAltDel ctrlAltDelFunc

	// teardownTimeout caps Cleanup when ctx carries no earlier deadline.
	teardownTimeout time.Duration
}

// NewManager creates a Manager using the CNI settings in cfg.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	network, err := NewNetworkCleaner(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create network cleaner: %w", err)
	}
	return newManager(network, logger), nil
}

func newManager(network *NetworkCleaner, logger *slog.Logger) *Manager {
	return &Manager{
		network:         network,
		logger:          logger,
		ctrlAltDel:      sendCtrlAltDel,
		teardownTimeout: teardownTimeout,
	}
}

// SoftStop sends Ctrl-Alt-Del through the VM's API socket.
func (mgr *Manager) SoftStop(ctx context.Context, m Machine) error {
	if m.SocketPath == "" {
		return errNoSocket
	}

	ctx, cancel := context.WithTimeout(ctx, softStopTimeout)
	defer cancel()

	if err := mgr.ctrlAltDel(ctx, m.SocketPath); err != nil {
		softStopsTotal.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("send ctrl-alt-del to %s: %w", m.ID, err)
	}
	softStopsTotal.WithLabelValues(outcomeOK).Inc()
	mgr.logger.Info("sent ctrl-alt-del", "vm_id", m.ID, "socket", m.SocketPath)
	return nil
}

// Cleanup tears down the VM's network attachment and API socket. It returns
// no later than ctx's deadline or the manager's teardown timeout, whichever
// comes first; a hung CNI plugin is killed and reported as an error.
func (mgr *Manager) Cleanup(ctx context.Context, m Machine) error {
	ctx, cancel := context.WithTimeout(ctx, mgr.teardownTimeout)
	defer cancel()

	if err := mgr.network.Teardown(ctx, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}
