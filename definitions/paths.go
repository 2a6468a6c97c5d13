package defs

import "os"

// Service account the lapdev-ws daemon runs as. Created by the bootstrap
// sequence if the host does not have it yet; never removed by this tool.
const (
	ServiceUser = "lapdev"
	ServiceHome = "/home/lapdev"
)

const (
	// Daemon runtime settings, read by lapdev-ws on startup.
	WsConfPath = "/etc/lapdev-ws.conf"
	// Persistent daemon data (workspace repositories, build state).
	StateDir = "/var/lib/lapdev"

	// systemd drop-in granting user sessions delegated cgroup controllers,
	// so the daemon can manage cgroups for the workloads it spawns without
	// elevated privilege.
	DelegateDropinDir = "/etc/systemd/system/user@.service.d"
	DelegateConfPath  = DelegateDropinDir + "/delegate.conf"

	// Rootless podman configuration for the service account.
	UserConfigDir      = ServiceHome + "/.config"
	ContainersConfDir  = UserConfigDir + "/containers"
	RegistriesConfPath = ContainersConfDir + "/registries.conf"
	StorageConfPath    = ContainersConfDir + "/storage.conf"
)

const (
	DirMode  = os.FileMode(0755) | os.ModeDir
	FileMode = os.FileMode(0644)
	// The daemon config carries bind address and ports; keep it away from
	// world-readable.
	WsConfMode = os.FileMode(0640)
)
