package process

import (
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
)

// Output tags used on the event bus.
const (
	TagInstall = "install"
	TagVerify  = "verify"
	TagDev     = "dev"
	TagShell   = "shell"
)

// Commands holds the argv of every pipeline command.
type Commands struct {
	Install []string
	Dev     []string
	Verify  []string
	Shell   []string

	// ShellInstall and ShellDev are typed into the interactive shell by
	// the "install dependencies" and "start dev" actions.
	ShellInstall string
	ShellDev     string
}

// CommandsFromConfig splits the command lines in cfg.
func CommandsFromConfig(cfg config.SandboxConfig) (Commands, error) {
	install, err := cfg.InstallArgv()
	if err != nil {
		return Commands{}, err
	}
	dev, err := cfg.DevArgv()
	if err != nil {
		return Commands{}, err
	}
	verify, err := cfg.VerifyArgv()
	if err != nil {
		return Commands{}, err
	}
	shell, err := cfg.ShellArgv()
	if err != nil {
		return Commands{}, err
	}
	return Commands{
		Install:      install,
		Dev:          dev,
		Verify:       verify,
		Shell:        shell,
		ShellInstall: cfg.InstallCommand,
		ShellDev:     cfg.ShellDevCommand,
	}, nil
}

// DefaultCommands returns the commands of the default configuration.
func DefaultCommands() Commands {
	cmds, err := CommandsFromConfig(config.Default().Sandbox)
	if err != nil {
		panic("default commands: " + err.Error())
	}
	return cmds
}

// Filter reports whether an output line should be forwarded.
type Filter func(line string) bool

// InstallFilter keeps only install lines that report added packages or
// errors.
func InstallFilter(line string) bool {
	return strings.Contains(line, "added") || strings.Contains(line, "error")
}
