package bootstrap

import (
	"context"

	"github.com/pkg/errors"

	defs "lapdev-ws-setup/definitions"
	er "lapdev-ws-setup/errors"
	log "lapdev-ws-setup/logger"
	"lapdev-ws-setup/pkg/utils"
)

// ensureServiceAccount creates the daemon's OS user with its home directory
// if it does not exist yet. A failed useradd is fatal; every later step
// assumes the account is there.
func ensureServiceAccount(layout Layout, sys System) Step {
	return Step{
		Name: "service account",
		Run: func(ctx context.Context) (Outcome, error) {
			acct, err := sys.LookupUser(layout.ServiceUser)
			if err != nil {
				return OutcomeUnknown, err
			}
			if acct != nil {
				return AlreadyPresent, nil
			}

			if err := sys.CreateUser(layout.ServiceUser, layout.ServiceHome); err != nil {
				return OutcomeUnknown, err
			}
			acct, err = sys.LookupUser(layout.ServiceUser)
			if err != nil {
				return OutcomeUnknown, err
			}
			if acct == nil {
				return OutcomeUnknown, errors.Wrapf(er.UserMissing, "%q missing right after useradd", layout.ServiceUser)
			}

			// Lingering keeps the account's user session, and with it the
			// delegated cgroup tree, alive without an interactive login.
			// systemd is unreachable in chroot installs; not fatal.
			if err := sys.EnableLinger(acct.UID); err != nil {
				log.Warnf("could not enable lingering for %s: %v", layout.ServiceUser, err)
			}
			return Created, nil
		},
	}
}

// ensureDaemonConfig writes the default /etc config when absent and makes
// sure the state directory exists. An existing config is the admin's;
// neither its bytes nor its ownership are touched again.
func ensureDaemonConfig(layout Layout, sys System) Step {
	return Step{
		Name: "daemon config",
		Run: func(ctx context.Context) (Outcome, error) {
			acct, err := requireAccount(layout, sys)
			if err != nil {
				return OutcomeUnknown, err
			}

			outcome := AlreadyPresent
			if !utils.FileExist(layout.WsConfPath) {
				if err := utils.WriteFileAtomic(layout.WsConfPath, defs.DefaultWsConf().Render(), defs.WsConfMode); err != nil {
					return OutcomeUnknown, err
				}
				if err := sys.Chown(layout.WsConfPath, acct.UID, acct.GID); err != nil {
					return OutcomeUnknown, err
				}
				outcome = Created
			}

			if !utils.FileExist(layout.StateDir) {
				if err := utils.EnsureDir(layout.StateDir, defs.DirMode); err != nil {
					return OutcomeUnknown, err
				}
				if err := sys.Chown(layout.StateDir, acct.UID, acct.GID); err != nil {
					return OutcomeUnknown, err
				}
			}
			return outcome, nil
		},
	}
}

// ensureCgroupDelegation drops the user@.service override delegating the
// memory, pids, cpu and cpuset controllers to user sessions.
func ensureCgroupDelegation(layout Layout, sys System) Step {
	return Step{
		Name: "cgroup delegation",
		Run: func(ctx context.Context) (Outcome, error) {
			if utils.FileExist(layout.DelegateConfPath) {
				return AlreadyPresent, nil
			}

			if err := utils.EnsureDir(layout.DelegateDropinDir, defs.DirMode); err != nil {
				return OutcomeUnknown, err
			}
			if err := utils.WriteFileAtomic(layout.DelegateConfPath, defs.RenderDelegateConf(), defs.FileMode); err != nil {
				return OutcomeUnknown, err
			}

			// The drop-in applies once systemd rereads unit files. No bus
			// inside debootstrap/chroot; warn and move on, the next boot
			// picks it up anyway.
			if err := sys.ReloadServiceManager(ctx); err != nil {
				log.Warnf("systemd daemon-reload: %v", err)
			}
			return Created, nil
		},
	}
}

// ensureContainerDefaults seeds the service account's podman configuration:
// registry search list and overlay storage driver. Ownership of the .config
// tree is enforced only when something was created.
func ensureContainerDefaults(layout Layout, sys System) Step {
	return Step{
		Name: "container runtime defaults",
		Run: func(ctx context.Context) (Outcome, error) {
			acct, err := requireAccount(layout, sys)
			if err != nil {
				return OutcomeUnknown, err
			}

			created := false
			for _, file := range []struct {
				path    string
				content []byte
			}{
				{layout.RegistriesConfPath, defs.RenderRegistriesConf()},
				{layout.StorageConfPath, defs.RenderStorageConf()},
			} {
				if utils.FileExist(file.path) {
					continue
				}
				if err := utils.EnsureDir(layout.ContainersConfDir, defs.DirMode); err != nil {
					return OutcomeUnknown, err
				}
				if err := utils.WriteFileAtomic(file.path, file.content, defs.FileMode); err != nil {
					return OutcomeUnknown, err
				}
				created = true
			}

			if !created {
				return AlreadyPresent, nil
			}
			if err := sys.ChownRecursive(layout.UserConfigDir, acct.UID, acct.GID); err != nil {
				return OutcomeUnknown, err
			}
			return Created, nil
		},
	}
}

func requireAccount(layout Layout, sys System) (*Account, error) {
	acct, err := sys.LookupUser(layout.ServiceUser)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errors.Wrapf(er.UserMissing, "%q", layout.ServiceUser)
	}
	return acct, nil
}
