package defs

import (
	"fmt"
	"strings"
)

// Keys in /etc/lapdev-ws.conf as the daemon reads them: the listen address,
// the workspace API port and the server-to-server port.
const (
	KeyBind        = "bind"
	KeyWsPort      = "ws-port"
	KeyInterWsPort = "inter-ws-port"
)

// Defaults written on a fresh install. These must match what lapdev-ws
// expects out of the box; the rendered bytes are a compatibility surface
// shared with the daemon and must not drift.
const (
	DefaultBind        = "0.0.0.0"
	DefaultWsPort      = 6123
	DefaultInterWsPort = 6122
)

// WsConf is the daemon configuration document.
type WsConf struct {
	Bind        string
	WsPort      int
	InterWsPort int
}

func DefaultWsConf() WsConf {
	return WsConf{
		Bind:        DefaultBind,
		WsPort:      DefaultWsPort,
		InterWsPort: DefaultInterWsPort,
	}
}

func (c WsConf) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %q\n", KeyBind, c.Bind)
	fmt.Fprintf(&b, "%s = %d\n", KeyWsPort, c.WsPort)
	fmt.Fprintf(&b, "%s = %d\n", KeyInterWsPort, c.InterWsPort)
	return []byte(b.String())
}

// Cgroup controllers delegated to user sessions. The daemon needs all four
// to constrain workspace containers from an unprivileged session.
var DelegateControllers = []string{"memory", "pids", "cpu", "cpuset"}

func RenderDelegateConf() []byte {
	return []byte("[Service]\nDelegate=" + strings.Join(DelegateControllers, " ") + "\n")
}

// Podman defaults for the service account. Registry search list so that
// unqualified image names resolve, and the overlay storage driver.
var UnqualifiedSearchRegistries = []string{"docker.io"}

const StorageDriver = "overlay"

func RenderRegistriesConf() []byte {
	quoted := make([]string, len(UnqualifiedSearchRegistries))
	for i, r := range UnqualifiedSearchRegistries {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return []byte("unqualified-search-registries = [" + strings.Join(quoted, ", ") + "]\n")
}

func RenderStorageConf() []byte {
	return []byte(fmt.Sprintf("[storage]\ndriver = %q\n", StorageDriver))
}
