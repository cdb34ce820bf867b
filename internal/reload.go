package internal

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ProcessController abstracts the process operations needed to reload or
// restart the DNS server.
type ProcessController interface {
	Signal(pid int, sig syscall.Signal) error
	KillByName(name string) error
	Start(binary string, args ...string) error
}

type osProcessController struct {
	log *zap.Logger
}

func NewOSProcessController(log *zap.Logger) ProcessController {
	return &osProcessController{log: log}
}

func (p *osProcessController) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return errors.Errorf("invalid pid %d", pid)
	}
	return syscall.Kill(pid, sig)
}

// KillByName ignores the pkill exit status; no matching process is fine.
func (p *osProcessController) KillByName(name string) error {
	err := exec.Command("pkill", "-x", filepath.Base(name)).Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

func (p *osProcessController) Start(binary string, args ...string) error {
	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	err := cmd.Start()
	if err != nil {
		return err
	}
	go func() {
		err := cmd.Wait()
		p.log.Info("dns server exited", zap.String("binary", binary), zap.Error(err))
	}()
	return nil
}

// ReloadStrategy applies a freshly written configuration to the running
// server.
type ReloadStrategy interface {
	Name() string
	Reload(ctx context.Context) error
}

type restartReloader struct {
	proc     ProcessController
	binary   string
	corefile string
}

func (r *restartReloader) Name() string {
	return "restart"
}

func (r *restartReloader) Reload(ctx context.Context) error {
	err := r.proc.KillByName(r.binary)
	if err != nil {
		return errors.Wrapf(domain.ErrReloadFailure, "stop %v: %v", r.binary, err)
	}
	err = r.proc.Start(r.binary, "-conf", r.corefile)
	if err != nil {
		return errors.Wrapf(domain.ErrReloadFailure, "start %v: %v", r.binary, err)
	}
	return nil
}

type signalReloader struct {
	proc     ProcessController
	pid      string
	fallback ReloadStrategy
	log      *zap.Logger
	// stale is set once the pid could not be signalled; it is never signalled
	// again.
	stale atomic.Bool
}

func (r *signalReloader) Name() string {
	return "signal"
}

// Reload sends SIGUSR1 to the configured pid and restarts the server when the
// pid is malformed or the signal can not be delivered. After the first
// fallback every reload restarts.
func (r *signalReloader) Reload(ctx context.Context) error {
	if r.stale.Load() {
		return r.fallback.Reload(ctx)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(r.pid))
	if err == nil {
		err = r.proc.Signal(pid, syscall.SIGUSR1)
	}
	if err == nil {
		r.log.Info("sent SIGUSR1 to dns server", zap.Int("pid", pid))
		return nil
	}

	r.stale.Store(true)
	r.log.Warn("could not signal dns server, restarting from now on", zap.String("pid", r.pid), zap.Error(err))
	return r.fallback.Reload(ctx)
}

// ReloadCoordinator picks a reload strategy from the configuration and
// absorbs its failures: the configuration on disk stays valid for the next
// reload attempt.
type ReloadCoordinator struct {
	strategy ReloadStrategy
	metrics  *Metrics
	log      *zap.Logger
}

func NewReloadCoordinator(config domain.Config, proc ProcessController, metrics *Metrics, log *zap.Logger) *ReloadCoordinator {
	var strategy ReloadStrategy = &restartReloader{
		proc:     proc,
		binary:   config.ServerBinary(),
		corefile: config.CorefilePath(),
	}
	if config.ServerPID() != "" {
		strategy = &signalReloader{proc: proc, pid: config.ServerPID(), fallback: strategy, log: log}
	} else {
		log.Info("no dns server pid configured, reloads restart the server")
	}
	return &ReloadCoordinator{strategy: strategy, metrics: metrics, log: log}
}

func (c *ReloadCoordinator) Strategy() ReloadStrategy {
	return c.strategy
}

// Apply never returns an error; failures are logged and counted.
func (c *ReloadCoordinator) Apply(ctx context.Context) {
	err := c.strategy.Reload(ctx)
	if err != nil {
		c.log.Error("dns server reload failed", zap.String("strategy", c.strategy.Name()), zap.Error(err))
		c.metrics.ObserveReload(c.strategy.Name(), err)
		return
	}
	c.metrics.ObserveReload(c.strategy.Name(), nil)
}
