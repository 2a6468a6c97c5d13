package main

import (
	"context"
	"fmt"
	"os"

	log "lapdev-ws-setup/logger"
	"lapdev-ws-setup/pkg/bootstrap"
	"lapdev-ws-setup/pkg/verify"
)

// Version injected in Makefile.
var Version = "dev"

// Invoked by dpkg as the lapdev-ws postinst helper:
//
//	lapdev-ws-setup <phase> [most-recently-configured-version]
//
// Only the "configure" phase mutates the host. abort-upgrade, abort-remove,
// abort-deconfigure and anything unknown exit 0 without touching anything,
// since there is nothing to undo.
func main() {
	args := os.Args[1:]
	if len(args) == 0 || wantsUsage(args) {
		printUsage()
		return
	}

	// dpkg cannot pass extra flags to a maintainer script, so verbosity
	// rides on the environment.
	if os.Getenv("LAPDEV_SETUP_DEBUG") != "" {
		if err := log.Init(&log.Config{Debug: true}); err != nil {
			log.Warnf("logger init: %v", err)
		}
	}

	switch args[0] {
	case "status":
		if err := verify.Host(bootstrap.DefaultLayout(), bootstrap.NewHostSystem()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("host is configured for lapdev-ws")
	default:
		// dpkg passes the previously configured version as the second
		// argument, empty string on fresh installs. The sequence is the
		// same either way; existence checks make reconfiguration a no-op.
		// Non-configure phases return without touching the host.
		if err := bootstrap.RunPhase(context.Background(), args[0], bootstrap.DefaultLayout(), bootstrap.NewHostSystem()); err != nil {
			log.Errorf("bootstrap failed: %v", err)
			os.Exit(1)
		}
	}
}

func wantsUsage(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-v", "--version", "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Printf(`lapdev-ws-setup %s
one-shot host setup for the lapdev-ws daemon

usage:
  lapdev-ws-setup configure [version]   run the bootstrap sequence (postinst)
  lapdev-ws-setup status                report host bootstrap state, read-only
  lapdev-ws-setup <other-phase>         no-op, exits 0
`, Version)
}
