package bootstrap

import (
	"bufio"
	"os"
	"strings"

	"github.com/containerd/cgroups"
	"github.com/shirou/gopsutil/v3/mem"

	er "lapdev-ws-setup/errors"
	log "lapdev-ws-setup/logger"
)

// Preflight sanity-checks the host before the first mutation. Only missing
// root privilege is fatal, since useradd and chown would fail anyway with a
// less useful message. Everything else is advisory: the daemon, not the
// installer, is the one that ultimately cares.
func Preflight(sys System) error {
	if sys.EUID() != 0 {
		return er.NotRoot
	}

	switch cgroups.Mode() {
	case cgroups.Unified:
	case cgroups.Legacy, cgroups.Hybrid:
		// Controller delegation to user sessions only works on the unified
		// hierarchy; rootless workspaces will run without limits.
		log.Warnf("host is not on the unified cgroup hierarchy, workspace resource limits will not apply")
	default:
		log.Warnf("cannot determine cgroup hierarchy mode")
	}

	if ok, err := overlaySupported(); err != nil {
		log.Debugf("overlay support check: %v", err)
	} else if !ok {
		log.Warnf("overlay filesystem not registered with the kernel, podman will try to load it on first use")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		log.Infof("host memory: %d MiB total, %d MiB available", vm.Total>>20, vm.Available>>20)
	}

	return nil
}

// overlaySupported reports whether the kernel knows the overlay filesystem
// that storage.conf selects. Scans /proc/filesystems rather than
// /proc/modules so a built-in overlayfs counts too.
func overlaySupported() (bool, error) {
	f, err := os.Open("/proc/filesystems")
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// Each line: "nodev\tname" or "\tname"; we only need the last token.
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[len(fields)-1] == "overlay" {
			return true, nil
		}
	}
	return false, sc.Err()
}
