// Package verify inspects the artifacts the bootstrapper maintains and
// reports every divergence at once. It never mutates the host, so
// `lapdev-ws-setup status` is safe to run at any time.
package verify

import (
	"os"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/gookit/ini/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	defs "lapdev-ws-setup/definitions"
	er "lapdev-ws-setup/errors"
	"lapdev-ws-setup/pkg/bootstrap"
	"lapdev-ws-setup/pkg/utils"
)

// registriesDoc and storageDoc mirror the two podman files just enough to
// validate them; podman itself is the authoritative reader.
type registriesDoc struct {
	UnqualifiedSearchRegistries []string `toml:"unqualified-search-registries"`
}

type storageDoc struct {
	Storage struct {
		Driver string `toml:"driver"`
	} `toml:"storage"`
}

// Host checks the whole bootstrap surface and returns an aggregate of all
// findings, nil when the host is fully configured. Admin customization of
// values is fine; what is checked is presence, ownership, modes and that
// each file still parses with the keys the daemon needs.
func Host(layout bootstrap.Layout, sys bootstrap.System) error {
	var findings *multierror.Error

	acct, err := sys.LookupUser(layout.ServiceUser)
	if err != nil {
		findings = multierror.Append(findings, err)
	} else if acct == nil {
		findings = multierror.Append(findings, errors.Wrapf(er.MissingArtifact, "service account %q", layout.ServiceUser))
	}

	findings = appendAll(findings, checkWsConf(layout, acct))
	findings = appendAll(findings, checkStateDir(layout, acct))
	findings = appendAll(findings, checkDelegate(layout))
	findings = appendAll(findings, checkContainers(layout))
	return findings.ErrorOrNil()
}

func appendAll(agg *multierror.Error, errs []error) *multierror.Error {
	for _, err := range errs {
		agg = multierror.Append(agg, err)
	}
	return agg
}

func checkWsConf(layout bootstrap.Layout, acct *bootstrap.Account) []error {
	var errs []error

	info, err := os.Stat(layout.WsConfPath)
	if err != nil {
		return []error{errors.Wrapf(er.MissingArtifact, "%s", layout.WsConfPath)}
	}
	if !info.Mode().IsRegular() {
		return []error{errors.Wrapf(er.ContentInvalid, "%s is not a regular file", layout.WsConfPath)}
	}
	if mode := info.Mode().Perm(); mode != defs.WsConfMode {
		errs = append(errs, errors.Wrapf(er.ModeDrift, "%s has mode %04o, want %04o", layout.WsConfPath, mode, defs.WsConfMode))
	}
	if err := checkOwner(layout.WsConfPath, info, acct); err != nil {
		errs = append(errs, err)
	}

	cfg := ini.New()
	if err := cfg.LoadExists(layout.WsConfPath); err != nil {
		return append(errs, errors.Wrapf(er.ContentInvalid, "%s: %v", layout.WsConfPath, err))
	}
	for _, key := range []string{defs.KeyBind, defs.KeyWsPort, defs.KeyInterWsPort} {
		if strings.TrimSpace(cfg.String(key)) == "" {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: %q not set", layout.WsConfPath, key))
		}
	}
	return errs
}

func checkStateDir(layout bootstrap.Layout, acct *bootstrap.Account) []error {
	info, err := os.Stat(layout.StateDir)
	if err != nil {
		return []error{errors.Wrapf(er.MissingArtifact, "%s", layout.StateDir)}
	}
	if !info.IsDir() {
		return []error{errors.Wrapf(er.ContentInvalid, "%s is not a directory", layout.StateDir)}
	}
	if err := checkOwner(layout.StateDir, info, acct); err != nil {
		return []error{err}
	}
	return nil
}

func checkDelegate(layout bootstrap.Layout) []error {
	if !utils.FileExist(layout.DelegateConfPath) {
		return []error{errors.Wrapf(er.MissingArtifact, "%s", layout.DelegateConfPath)}
	}
	if !utils.IsRegular(layout.DelegateConfPath) {
		return []error{errors.Wrapf(er.ContentInvalid, "%s is not a regular file", layout.DelegateConfPath)}
	}

	cfg := ini.New()
	if err := cfg.LoadExists(layout.DelegateConfPath); err != nil {
		return []error{errors.Wrapf(er.ContentInvalid, "%s: %v", layout.DelegateConfPath, err)}
	}

	delegated := strings.Fields(cfg.String("Service.Delegate"))
	var errs []error
	for _, controller := range defs.DelegateControllers {
		found := false
		for _, d := range delegated {
			if d == controller {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: controller %q not delegated", layout.DelegateConfPath, controller))
		}
	}
	return errs
}

func checkContainers(layout bootstrap.Layout) []error {
	var errs []error

	var registries registriesDoc
	switch {
	case !utils.FileExist(layout.RegistriesConfPath):
		errs = append(errs, errors.Wrapf(er.MissingArtifact, "%s", layout.RegistriesConfPath))
	case !utils.IsRegular(layout.RegistriesConfPath):
		errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s is not a regular file", layout.RegistriesConfPath))
	default:
		if _, err := toml.DecodeFile(layout.RegistriesConfPath, &registries); err != nil {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: %v", layout.RegistriesConfPath, err))
		} else if len(registries.UnqualifiedSearchRegistries) == 0 {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: empty unqualified-search-registries", layout.RegistriesConfPath))
		}
	}

	var storage storageDoc
	switch {
	case !utils.FileExist(layout.StorageConfPath):
		errs = append(errs, errors.Wrapf(er.MissingArtifact, "%s", layout.StorageConfPath))
	case !utils.IsRegular(layout.StorageConfPath):
		errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s is not a regular file", layout.StorageConfPath))
	default:
		if _, err := toml.DecodeFile(layout.StorageConfPath, &storage); err != nil {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: %v", layout.StorageConfPath, err))
		} else if storage.Storage.Driver == "" {
			errs = append(errs, errors.Wrapf(er.ContentInvalid, "%s: no storage driver selected", layout.StorageConfPath))
		}
	}
	return errs
}

// checkOwner compares the file's uid/gid against the service account. Skipped
// when the account itself is already reported missing.
func checkOwner(path string, info os.FileInfo, acct *bootstrap.Account) error {
	if acct == nil {
		return nil
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if int(st.Uid) != acct.UID || int(st.Gid) != acct.GID {
		return errors.Wrapf(er.OwnerDrift, "%s owned by %d:%d, want %d:%d", path, st.Uid, st.Gid, acct.UID, acct.GID)
	}
	return nil
}
