package keepawake

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const systemdInhibitBinary = "systemd-inhibit"

// Detect returns the platform inhibitor available on this host, or nil when
// none is. The check runs once at startup; there is no fallback chain.
func Detect() Inhibitor {
	if runtime.GOOS != "linux" {
		return nil
	}
	path, err := exec.LookPath(systemdInhibitBinary)
	if err != nil {
		log.Info().Msg("systemd-inhibit not found, keep-awake is in-process only")
		return nil
	}
	return &SystemdInhibitor{Path: path}
}

// SystemdInhibitor blocks idle and sleep through logind for the lifetime of a
// child process.
type SystemdInhibitor struct {
	Path string
}

func (s *SystemdInhibitor) Name() string { return systemdInhibitBinary }

// Inhibit starts systemd-inhibit wrapping a sleep slightly longer than d, so
// the lock lapses by itself if this process dies. The returned func kills the
// child.
func (s *SystemdInhibitor) Inhibit(reason string, d time.Duration) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	secs := int(d/time.Second) + 1

	cmd := exec.CommandContext(ctx, s.Path,
		"--what=idle:sleep",
		"--who=arenanotify",
		"--why="+reason,
		"--mode=block",
		"sleep", strconv.Itoa(secs),
	)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", systemdInhibitBinary, err)
	}
	go func() { _ = cmd.Wait() }()

	return cancel, nil
}
