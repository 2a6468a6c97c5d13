package bootstrap

import (
	"context"
	"os"
	"os/user"
	"strconv"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/pkg/errors"
	"golang.org/x/sys/execabs"
	"golang.org/x/sys/unix"

	er "lapdev-ws-setup/errors"
	"lapdev-ws-setup/pkg/utils"
)

// Account is a resolved OS user.
type Account struct {
	Name string
	UID  int
	GID  int
	Home string
}

// System is the seam between the bootstrap steps and the host: user
// database, ownership changes and the service manager. The host
// implementation shells out for user creation the same way the daemon
// itself provisions workspace accounts; tests substitute a fake.
type System interface {
	EUID() int
	// LookupUser returns (nil, nil) when the user does not exist.
	LookupUser(name string) (*Account, error)
	CreateUser(name, home string) error
	EnableLinger(uid int) error
	Chown(path string, uid, gid int) error
	ChownRecursive(path string, uid, gid int) error
	ReloadServiceManager(ctx context.Context) error
}

type hostSystem struct{}

func NewHostSystem() System {
	return hostSystem{}
}

func (hostSystem) EUID() int {
	return unix.Geteuid()
}

func (hostSystem) LookupUser(name string) (*Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		if _, ok := err.(user.UnknownUserError); ok {
			return nil, nil
		}
		return nil, errors.Wrapf(er.UserLookupFailed, "lookup %q: %v", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, errors.Wrapf(er.UserLookupFailed, "non-numeric uid %q for %q", u.Uid, name)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, errors.Wrapf(er.UserLookupFailed, "non-numeric gid %q for %q", u.Gid, name)
	}

	return &Account{Name: name, UID: uid, GID: gid, Home: u.HomeDir}, nil
}

func (hostSystem) CreateUser(name, home string) error {
	// Same argv shape the daemon uses when it provisions per-workspace
	// accounts: useradd <name> -d <home> -m.
	output, err := execabs.Command("useradd", name, "-d", home, "-m").CombinedOutput()
	if err != nil {
		return errors.Wrapf(er.UserCreateFailed, "useradd %s: %v: %s", name, err, output)
	}
	return nil
}

func (hostSystem) EnableLinger(uid int) error {
	output, err := execabs.Command("loginctl", "enable-linger", strconv.Itoa(uid)).CombinedOutput()
	if err != nil {
		return errors.Errorf("loginctl enable-linger %d: %v: %s", uid, err, output)
	}
	return nil
}

func (hostSystem) Chown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}

func (hostSystem) ChownRecursive(path string, uid, gid int) error {
	return utils.ChownRecursive(path, uid, gid)
}

func (hostSystem) ReloadServiceManager(ctx context.Context) error {
	conn, err := systemddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.ReloadContext(ctx)
}
