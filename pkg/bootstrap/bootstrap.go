// Package bootstrap brings a fresh host to the minimum state the lapdev-ws
// daemon needs to start: the service account, the default daemon config,
// cgroup delegation for user sessions and rootless podman defaults.
//
// Every step is idempotent. Existence of a resource is its completion
// marker, so the sequence is safe to re-run after a partial failure, and a
// second run on a configured host touches nothing.
package bootstrap

import (
	"context"

	"github.com/pkg/errors"

	defs "lapdev-ws-setup/definitions"
	log "lapdev-ws-setup/logger"
)

// Outcome tells what a step did to the host.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	Created
	AlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyPresent:
		return "already present"
	default:
		return "unknown"
	}
}

// Step is one idempotent unit of the sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) (Outcome, error)
}

// Result records what a finished step reported.
type Result struct {
	Step    string
	Outcome Outcome
}

// Layout holds every path the bootstrapper touches. DefaultLayout returns
// the fixed production paths; tests point the fields at a scratch root.
type Layout struct {
	ServiceUser string
	ServiceHome string

	WsConfPath string
	StateDir   string

	DelegateDropinDir string
	DelegateConfPath  string

	UserConfigDir      string
	ContainersConfDir  string
	RegistriesConfPath string
	StorageConfPath    string
}

func DefaultLayout() Layout {
	return Layout{
		ServiceUser: defs.ServiceUser,
		ServiceHome: defs.ServiceHome,

		WsConfPath: defs.WsConfPath,
		StateDir:   defs.StateDir,

		DelegateDropinDir: defs.DelegateDropinDir,
		DelegateConfPath:  defs.DelegateConfPath,

		UserConfigDir:      defs.UserConfigDir,
		ContainersConfDir:  defs.ContainersConfDir,
		RegistriesConfPath: defs.RegistriesConfPath,
		StorageConfPath:    defs.StorageConfPath,
	}
}

// Sequence returns the ordered steps. Order matters: the config and podman
// steps chown to the account the first step creates.
func Sequence(layout Layout, sys System) []Step {
	return []Step{
		ensureServiceAccount(layout, sys),
		ensureDaemonConfig(layout, sys),
		ensureCgroupDelegation(layout, sys),
		ensureContainerDefaults(layout, sys),
	}
}

// RunSequence executes steps in order and stops at the first failure. There
// is no rollback; the idempotence guarantee makes re-running the whole
// sequence the recovery path.
func RunSequence(ctx context.Context, steps []Step) ([]Result, error) {
	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		outcome, err := step.Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %q", step.Name)
		}
		log.Infof("%s: %s", step.Name, outcome)
		results = append(results, Result{Step: step.Name, Outcome: outcome})
	}
	return results, nil
}

// RunPhase dispatches a maintainer script phase. Only "configure" mutates
// the host; every other phase dpkg can hand over (abort-upgrade,
// abort-remove, abort-deconfigure, triggered, or anything unknown) returns
// before a single call against the user database or the filesystem.
func RunPhase(ctx context.Context, phase string, layout Layout, sys System) error {
	if phase != "configure" {
		log.Debugf("phase %q needs no host setup", phase)
		return nil
	}

	if err := Preflight(sys); err != nil {
		return err
	}
	_, err := RunSequence(ctx, Sequence(layout, sys))
	return err
}

// Bootstrap runs the full sequence against the real host with the fixed
// production layout.
func Bootstrap(ctx context.Context) error {
	return RunPhase(ctx, "configure", DefaultLayout(), NewHostSystem())
}
