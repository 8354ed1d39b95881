package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"SecureDrop/internal/config"
)

// ErrUsage is returned by a command when arguments are invalid and usage should be shown.
var ErrUsage = errors.New("usage")

// ErrDuplicateCommand: имя команды уже занято.
var ErrDuplicateCommand = errors.New("command already registered")

// Command represents a CLI subcommand.
type Command interface {
	// Name returns the command name as typed by the user, e.g. "login".
	Name() string
	// Description is a short human-readable description shown in help.
	Description() string
	// Usage returns the exact usage string, e.g. "login <login> <password>".
	Usage() string
	// Run executes the command with provided args (without the command name).
	Run(ctx context.Context, cfg *config.Config, args []string) error
}

// Section: раздел справки, в котором показывается команда.
type Section int

const (
	SectionAccount Section = iota
	SectionTransfers
)

func (s Section) title() string {
	if s == SectionAccount {
		return "Account"
	}
	return "Transfers"
}

type entry struct {
	cmd     Command
	section Section
}

var registry = map[string]entry{}

// Out: общий writer для вывода CLI. По умолчанию os.Stdout, но в тестах может переназначаться.
var Out io.Writer = os.Stdout

// Register добавляет команду в раздел справки. Повторное имя отклоняется.
func Register(section Section, cmd Command) error {
	name := cmd.Name()
	if name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid command name %q", name)
	}
	if _, exists := registry[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	registry[name] = entry{cmd: cmd, section: section}
	return nil
}

// mustRegister вызывается из init(): ошибка регистрации здесь означает ошибку сборки команд.
func mustRegister(section Section, cmds ...Command) {
	for _, c := range cmds {
		if err := Register(section, c); err != nil {
			panic(err)
		}
	}
}

// Get returns a command by name.
func Get(name string) (Command, bool) {
	e, ok := registry[name]
	return e.cmd, ok
}

// List returns all registered commands sorted by name.
func List() []Command {
	list := make([]Command, 0, len(registry))
	for _, e := range registry {
		list = append(list, e.cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// FormatGlobalUsage builds a help text grouped by section.
func FormatGlobalUsage() string {
	lines := []string{
		"SecureDrop CLI",
		"",
		"Usage:",
		"  sdrop [--base-url <host:port>] [--https] <command> [args]",
	}
	for _, section := range []Section{SectionAccount, SectionTransfers} {
		var rows []string
		for _, c := range List() {
			if registry[c.Name()].section == section {
				rows = append(rows, fmt.Sprintf("  %-60s %s", c.Usage(), c.Description()))
			}
		}
		if len(rows) == 0 {
			continue
		}
		lines = append(lines, "", section.title()+" commands:")
		lines = append(lines, rows...)
	}
	return strings.Join(lines, "\n") + "\n"
}
