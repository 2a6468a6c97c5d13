package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	defs "lapdev-ws-setup/definitions"
	er "lapdev-ws-setup/errors"
)

type fakeSystem struct {
	euid    int
	users   map[string]*Account
	nextUID int

	createErr error
	lingerErr error
	reloadErr error

	lookups         int
	chowns          map[string]int
	recursiveChowns []string
	lingered        []int
	reloads         int
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		euid:    0,
		users:   make(map[string]*Account),
		nextUID: 1000,
		chowns:  make(map[string]int),
	}
}

func (f *fakeSystem) EUID() int { return f.euid }

func (f *fakeSystem) LookupUser(name string) (*Account, error) {
	f.lookups++
	return f.users[name], nil
}

func (f *fakeSystem) CreateUser(name, home string) error {
	if f.createErr != nil {
		return f.createErr
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	f.users[name] = &Account{Name: name, UID: f.nextUID, GID: f.nextUID, Home: home}
	f.nextUID++
	return nil
}

func (f *fakeSystem) EnableLinger(uid int) error {
	if f.lingerErr != nil {
		return f.lingerErr
	}
	f.lingered = append(f.lingered, uid)
	return nil
}

func (f *fakeSystem) Chown(path string, uid, gid int) error {
	f.chowns[path]++
	return nil
}

func (f *fakeSystem) ChownRecursive(path string, uid, gid int) error {
	f.recursiveChowns = append(f.recursiveChowns, path)
	return nil
}

func (f *fakeSystem) ReloadServiceManager(ctx context.Context) error {
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.reloads++
	return nil
}

// testLayout mirrors the production layout under a scratch root. /etc is
// pre-created because it always exists on a real host.
func testLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	home := filepath.Join(root, "home", "lapdev")
	dropin := filepath.Join(root, "etc", "systemd", "system", "user@.service.d")
	containers := filepath.Join(home, ".config", "containers")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))

	return Layout{
		ServiceUser: "lapdev",
		ServiceHome: home,

		WsConfPath: filepath.Join(root, "etc", "lapdev-ws.conf"),
		StateDir:   filepath.Join(root, "var", "lib", "lapdev"),

		DelegateDropinDir: dropin,
		DelegateConfPath:  filepath.Join(dropin, "delegate.conf"),

		UserConfigDir:      filepath.Join(home, ".config"),
		ContainersConfDir:  containers,
		RegistriesConfPath: filepath.Join(containers, "registries.conf"),
		StorageConfPath:    filepath.Join(containers, "storage.conf"),
	}
}

func runAll(t *testing.T, layout Layout, sys System) []Result {
	t.Helper()
	results, err := RunSequence(context.Background(), Sequence(layout, sys))
	require.NoError(t, err)
	return results
}

func TestSequenceOnFreshHost(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()

	results := runAll(t, layout, sys)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, Created, r.Outcome, r.Step)
	}

	content, err := os.ReadFile(layout.WsConfPath)
	require.NoError(t, err)
	assert.Equal(t, string(defs.DefaultWsConf().Render()), string(content))

	info, err := os.Stat(layout.WsConfPath)
	require.NoError(t, err)
	assert.Equal(t, defs.WsConfMode, info.Mode().Perm())

	for path, want := range map[string][]byte{
		layout.DelegateConfPath:   defs.RenderDelegateConf(),
		layout.RegistriesConfPath: defs.RenderRegistriesConf(),
		layout.StorageConfPath:    defs.RenderStorageConf(),
	} {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(content))
	}

	stateInfo, err := os.Stat(layout.StateDir)
	require.NoError(t, err)
	assert.True(t, stateInfo.IsDir())

	acct := sys.users["lapdev"]
	require.NotNil(t, acct)
	assert.Equal(t, 1, sys.chowns[layout.WsConfPath])
	assert.Equal(t, 1, sys.chowns[layout.StateDir])
	assert.Equal(t, []string{layout.UserConfigDir}, sys.recursiveChowns)
	assert.Equal(t, []int{acct.UID}, sys.lingered)
	assert.Equal(t, 1, sys.reloads)
}

func TestSequenceIsIdempotent(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()

	runAll(t, layout, sys)
	before, err := os.ReadFile(layout.WsConfPath)
	require.NoError(t, err)

	results := runAll(t, layout, sys)

	for _, r := range results {
		assert.Equal(t, AlreadyPresent, r.Outcome, r.Step)
	}

	after, err := os.ReadFile(layout.WsConfPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	// ownership and permissions are enforced at creation only
	assert.Equal(t, 1, sys.chowns[layout.WsConfPath])
	assert.Equal(t, 1, sys.chowns[layout.StateDir])
	assert.Len(t, sys.recursiveChowns, 1)
	assert.Len(t, sys.lingered, 1)
	assert.Equal(t, 1, sys.reloads)
}

func TestExistingConfigIsNeverOverwritten(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()
	custom := "bind = \"10.0.0.1\"\nws-port = 9999\ninter-ws-port = 9998\n"
	require.NoError(t, os.WriteFile(layout.WsConfPath, []byte(custom), 0o600))

	results := runAll(t, layout, sys)

	assert.Equal(t, AlreadyPresent, results[1].Outcome)
	content, err := os.ReadFile(layout.WsConfPath)
	require.NoError(t, err)
	assert.Equal(t, custom, string(content))

	// mode of the admin's file is left alone too
	info, err := os.Stat(layout.WsConfPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Zero(t, sys.chowns[layout.WsConfPath])
}

func TestStateDirEnsuredEvenWhenConfigExists(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()
	require.NoError(t, os.WriteFile(layout.WsConfPath, defs.DefaultWsConf().Render(), 0o640))

	runAll(t, layout, sys)

	info, err := os.Stat(layout.StateDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 1, sys.chowns[layout.StateDir])
}

func TestDelegateDirectiveWrittenOnce(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()

	runAll(t, layout, sys)
	runAll(t, layout, sys)

	content, err := os.ReadFile(layout.DelegateConfPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "Delegate="))
	assert.Equal(t, 1, sys.reloads)
}

func TestUseraddFailureAbortsSequence(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()
	sys.createErr = er.UserCreateFailed

	results, err := RunSequence(context.Background(), Sequence(layout, sys))

	require.Error(t, err)
	assert.Empty(t, results)
	assert.NoFileExists(t, layout.WsConfPath)
	assert.NoFileExists(t, layout.DelegateConfPath)
}

func TestNonConfigurePhasesTouchNothing(t *testing.T) {
	for _, phase := range []string{"abort-upgrade", "abort-remove", "abort-deconfigure", "triggered", "bogus"} {
		layout := testLayout(t)
		sys := newFakeSystem()

		require.NoError(t, RunPhase(context.Background(), phase, layout, sys), phase)

		assert.NoFileExists(t, layout.WsConfPath, phase)
		assert.NoFileExists(t, layout.DelegateConfPath, phase)
		assert.NoFileExists(t, layout.RegistriesConfPath, phase)
		assert.NoFileExists(t, layout.StorageConfPath, phase)
		assert.NoDirExists(t, layout.StateDir, phase)

		assert.Empty(t, sys.users, phase)
		assert.Zero(t, sys.lookups, phase)
		assert.Empty(t, sys.chowns, phase)
		assert.Empty(t, sys.recursiveChowns, phase)
		assert.Empty(t, sys.lingered, phase)
		assert.Zero(t, sys.reloads, phase)
	}
}

func TestConfigurePhaseRunsSequence(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()

	require.NoError(t, RunPhase(context.Background(), "configure", layout, sys))

	assert.FileExists(t, layout.WsConfPath)
	assert.FileExists(t, layout.DelegateConfPath)
	assert.NotNil(t, sys.users["lapdev"])
}

func TestLingerFailureIsNotFatal(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()
	sys.lingerErr = os.ErrPermission

	results := runAll(t, layout, sys)
	assert.Equal(t, Created, results[0].Outcome)
}

func TestReloadFailureIsNotFatal(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()
	sys.reloadErr = os.ErrDeadlineExceeded

	results := runAll(t, layout, sys)
	assert.Equal(t, Created, results[2].Outcome)
	assert.FileExists(t, layout.DelegateConfPath)
}

func TestPartialRunCompletesOnRetry(t *testing.T) {
	layout := testLayout(t)
	sys := newFakeSystem()

	// first run dies after the account step
	_, err := RunSequence(context.Background(), Sequence(layout, sys)[:1])
	require.NoError(t, err)

	results := runAll(t, layout, sys)
	assert.Equal(t, AlreadyPresent, results[0].Outcome)
	assert.Equal(t, Created, results[1].Outcome)
	assert.Equal(t, Created, results[2].Outcome)
	assert.Equal(t, Created, results[3].Outcome)
}
