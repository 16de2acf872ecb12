package orchestrator

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// managedProcess tracks one supervised child (an actionworker or
// instanceworker binary).
type managedProcess struct {
	role string
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor spawns and reaps the action-worker and instance-worker child
// processes named in spec.md §4.4/§4.5. It is deliberately dumb: the
// health-check loop decides WHEN to respawn, the supervisor only knows HOW.
type Supervisor struct {
	log logger.Logger
	cnt config.DaemonConfig
	bin map[string]string // role -> executable path (cmd/actionworker, cmd/instanceworker)

	mu        sync.Mutex
	processes []*managedProcess
}

// NewSupervisor builds a Supervisor. actionWorkerBin/instanceWorkerBin are
// paths to the cmd/actionworker and cmd/instanceworker binaries; passing ""
// for either disables spawning that role (useful when running them as
// separately deployed processes outside this orchestrator's control).
func NewSupervisor(cfg config.DaemonConfig, actionWorkerBin, instanceWorkerBin string, log logger.Logger) *Supervisor {
	return &Supervisor{
		log: log,
		cnt: cfg,
		bin: map[string]string{
			"actionworker":   actionWorkerBin,
			"instanceworker": instanceWorkerBin,
		},
	}
}

// EnsureCounts spawns child processes until the number of live processes
// per role matches the configured targets (NumActionWorkers,
// MaxInstanceWorkers). Called from the health-check loop.
func (s *Supervisor) EnsureCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	for _, p := range s.processes {
		counts[p.role]++
	}

	for counts["actionworker"] < s.cnt.NumActionWorkers {
		if !s.spawnLocked("actionworker") {
			break
		}
		counts["actionworker"]++
	}
	for counts["instanceworker"] < s.cnt.MaxInstanceWorkers {
		if !s.spawnLocked("instanceworker") {
			break
		}
		counts["instanceworker"]++
	}
}

// Reap drops finished processes from the tracked list so EnsureCounts will
// replace them on the next health-check tick.
func (s *Supervisor) Reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	alive := s.processes[:0]
	for _, p := range s.processes {
		select {
		case <-p.done:
			s.log.Warn("supervisor: child exited", "role", p.role, "pid", p.cmd.Process.Pid)
		default:
			alive = append(alive, p)
		}
	}
	s.processes = alive
}

// spawnLocked starts one child of the given role. Returns false (without
// spawning) if no binary path was configured for that role.
func (s *Supervisor) spawnLocked(role string) bool {
	bin := s.bin[role]
	if bin == "" {
		return false
	}
	cmd := exec.Command(bin)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		s.log.Error("supervisor: failed to spawn child", "role", role, "error", err)
		return false
	}
	done := make(chan struct{})
	mp := &managedProcess{role: role, cmd: cmd, done: done}
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	s.processes = append(s.processes, mp)
	s.log.Info("supervisor: spawned child", "role", role, "pid", cmd.Process.Pid)
	return true
}

// DrainAll signals every supervised child to drain (SIGINT, which each
// worker binary interprets as "stop claiming, finish in-flight work") and
// waits up to grace before giving up and moving on; the reclaim loop will
// pick up anything left in_progress once last_ping ages out.
func (s *Supervisor) DrainAll(grace time.Duration) {
	s.mu.Lock()
	procs := append([]*managedProcess(nil), s.processes...)
	s.mu.Unlock()

	for _, p := range procs {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(os.Interrupt)
		}
	}

	deadline := time.After(grace)
	for _, p := range procs {
		select {
		case <-p.done:
		case <-deadline:
			s.log.Warn("supervisor: drain grace period expired, killing child", "role", p.role, "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
		}
	}
}

// Count returns the number of live processes per role, for health reporting.
func (s *Supervisor) Count() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, p := range s.processes {
		counts[p.role]++
	}
	return counts
}

