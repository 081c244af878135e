// Package shell implements the ASCII line-oriented command shell: a
// name-keyed opcode dispatch table and the per-opcode handlers that
// exercise every other package (sensor, motor, matching, persist, ams,
// stream) on behalf of whatever is attached to the serial line.
//
// Grounded in the original firmware's DebugMode opcode ladder (a long
// strcmp/else-if chain per command family) and in this repo's own
// core.CommandRegistry shape for the dispatch table itself — opcodes here
// are looked up by name instead of by a registered numeric ID, since the
// ASCII shell's wire format has no dictionary handshake.
package shell

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Handler processes one parsed command line. args[0] is the opcode
// itself, matching the original firmware's argv[0] convention; args[1:]
// are its parameters.
type Handler func(sess *Session, args []string) error

// Command is one registered opcode.
type Command struct {
	Name    string
	Usage   string
	Handler Handler
}

// Registry is the opcode dispatch table the shell consults for every
// line it receives.
type Registry struct {
	commands map[string]*Command
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// NewDefaultRegistry returns a registry with every device, RF, motor, and
// auto-matching opcode registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDevice(r)
	RegisterRF(r)
	RegisterMotor(r)
	RegisterAutoMatch(r)
	return r
}

// Register adds or replaces name's handler. Re-registering a name keeps
// its original position in Commands' order.
func (r *Registry) Register(name, usage string, h Handler) {
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = &Command{Name: name, Usage: usage, Handler: h}
}

// Lookup returns the command registered under name, if any.
func (r *Registry) Lookup(name string) (*Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Commands returns every registered command in registration order.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// usageError carries a command's usage string; Dispatch renders it as a
// "Usage: ..." line instead of a generic ERR line.
type usageError struct{ usage string }

func (e usageError) Error() string { return e.usage }

func errUsage(usage string) error { return usageError{usage: usage} }

// Dispatch tokenizes line with shell-style quoting, looks up its opcode,
// and runs the handler. A blank line, an unknown opcode, a malformed
// line, or a handler error each produce a sink line instead of
// propagating — the shell never dies from a malformed command.
func (r *Registry) Dispatch(sess *Session, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		sess.Sink.Emit(fmt.Sprintf("ERR,parse,%s", line))
		return
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		sess.Sink.Emit(fmt.Sprintf("Unknown command: %s", args[0]))
		return
	}
	if err := cmd.Handler(sess, args); err != nil {
		if u, isUsage := err.(usageError); isUsage {
			sess.Sink.Emit("Usage: " + u.usage)
			return
		}
		sess.Sink.Emit(fmt.Sprintf("ERR,%s,%s", args[0], err.Error()))
	}
}
