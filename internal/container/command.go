package container

import (
	"os/exec"
	"strconv"
	"strings"
)

// Command accumulates an invocation of the runtime binary. It is a plain
// value builder; nothing is executed until Cmd is called and started.
type Command struct {
	path string
	args []string
}

// NewCommand returns an empty invocation of the binary at path.
func NewCommand(path string) *Command {
	return &Command{path: path}
}

// Arg appends arguments.
func (c *Command) Arg(args ...string) *Command {
	c.args = append(c.args, args...)
	return c
}

// Path returns the runtime binary.
func (c *Command) Path() string {
	return c.path
}

// Args returns a copy of the accumulated arguments, excluding the binary.
func (c *Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// Cmd materializes the invocation. Stdio, environment and process
// attributes are left for the caller.
func (c *Command) Cmd() *exec.Cmd {
	return exec.Command(c.path, c.args...)
}

// String renders the invocation for logs, quoting arguments that a shell
// would split or expand.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.args)+1)
	parts = append(parts, quote(c.path))
	for _, a := range c.args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'\\$`*?;&|<>()") {
		return strconv.Quote(s)
	}
	return s
}
