package reaper

import (
	"fmt"
	"log/slog"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/backend/applecontainer"
	"github.com/seantiz/reaper/internal/backend/ctr"
	"github.com/seantiz/reaper/internal/backend/dockerlike"
	"github.com/seantiz/reaper/internal/backend/firecracker"
	"github.com/seantiz/reaper/internal/config"
	"github.com/seantiz/reaper/internal/model"
	"github.com/seantiz/reaper/internal/procsig"
	"github.com/seantiz/reaper/internal/runner"
)

// NewDispatcher wires a Dispatcher against the host: every command-driven
// backend from cfg, the process signaler, and the Firecracker manager when
// its CNI configuration loads.
func NewDispatcher(cfg config.Config, logger *slog.Logger) (*Dispatcher, error) {
	reg, ctrCfg, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		Registry:    reg,
		CtrDefaults: ctrCfg,
		Signaler:    procsig.Signaler{},
		Runner:      runner.New(logger),
		Logger:      logger,
		OpTimeout:   cfg.OpTimeout,
	}

	mgr, err := firecracker.NewManager(firecracker.LoadConfig(), logger)
	if err != nil {
		logger.Warn("firecracker manager unavailable, VMs will only be signalled", "error", err)
	} else {
		d.Firecracker = mgr
	}
	return d, nil
}

// NewRegistry registers the command-driven backends named in cfg and returns
// the firecracker-ctr defaults used for jobs without their own ctr block.
func NewRegistry(cfg config.Config) (*backend.Registry, ctr.Config, error) {
	bins := make(map[string]backend.Binary)
	for name, s := range map[string]string{
		"apple-container": cfg.ContainerBin,
		"docker":          cfg.DockerBin,
		"podman":          cfg.PodmanBin,
		"firecracker-ctr": cfg.FirecrackerCtrBin,
	} {
		bin, err := backend.ParseBinary(s)
		if err != nil {
			return nil, ctr.Config{}, fmt.Errorf("%s binary: %w", name, err)
		}
		bins[name] = bin
	}

	ctrCfg := ctr.Config{
		Bin:       bins["firecracker-ctr"],
		Address:   cfg.ContainerdSock,
		Namespace: cfg.ContainerdNamespace,
	}

	reg := backend.NewRegistry()
	reg.Register(string(model.BackendAppleContainer), applecontainer.New(bins["apple-container"]))
	reg.Register(string(model.BackendDocker), dockerlike.New(bins["docker"]))
	reg.Register(string(model.BackendPodman), dockerlike.New(bins["podman"]))
	reg.Register(string(model.BackendFirecrackerCtr), ctr.New(ctrCfg))
	return reg, ctrCfg, nil
}
