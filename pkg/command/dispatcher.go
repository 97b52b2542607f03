// Package command parses console lines and dispatches them to a fixed
// command table.
package command

import (
	"context"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/console"
)

// Token limits.
const (
	MaxName     = 19
	MaxArgument = 29
)

// Func runs a command. arg is empty when none was given.
type Func func(ctx context.Context, c console.Console, arg string)

// Command is one table entry.
type Command struct {
	Name    string
	Aliases []string
	Args    string
	Help    string
	Func    Func
}

// ParseLine splits a console line into a lower-cased command name and
// its argument. ok is false for blank lines.
func ParseLine(line string) (name, arg string, ok bool) {
	line = strings.Trim(line, " \t\r\n")
	if line == "" {
		return "", "", false
	}
	name = line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		name, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	name = strings.ToLower(name)
	if len(name) > MaxName {
		name = name[:MaxName]
	}
	if len(arg) > MaxArgument {
		arg = arg[:MaxArgument]
	}
	return name, arg, true
}

// Dispatcher maps names and aliases to commands.
type Dispatcher struct {
	Console console.Console

	commands []*Command
	byName   map[string]*Command
}

// NewDispatcher creates a Dispatcher with the built-in help command.
func NewDispatcher(c console.Console) *Dispatcher {
	d := &Dispatcher{Console: c, byName: make(map[string]*Command)}
	d.Add(&Command{
		Name: "help",
		Help: "list commands",
		Func: func(context.Context, console.Console, string) { d.PrintHelp() },
	})
	return d
}

// Add registers commands. Later entries replace earlier ones with the
// same name.
func (d *Dispatcher) Add(cmds ...*Command) *Dispatcher {
	for _, cmd := range cmds {
		d.commands = append(d.commands, cmd)
		d.byName[cmd.Name] = cmd
		for _, alias := range cmd.Aliases {
			d.byName[alias] = cmd
		}
	}
	return d
}

// Commands lists the table sorted by name.
func (d *Dispatcher) Commands() []*Command {
	cmds := make([]*Command, 0, len(d.commands))
	seen := make(map[string]bool)
	for _, cmd := range d.commands {
		if d.byName[cmd.Name] == cmd && !seen[cmd.Name] {
			seen[cmd.Name] = true
			cmds = append(cmds, cmd)
		}
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Lookup finds a command by name or alias.
func (d *Dispatcher) Lookup(name string) *Command {
	return d.byName[strings.ToLower(name)]
}

// Dispatch parses and runs line. It returns false for blank lines.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) bool {
	name, arg, ok := ParseLine(line)
	if !ok {
		return false
	}
	cmd := d.byName[name]
	if cmd == nil {
		glog.V(2).Infof("unknown command %q", name)
		console.Printf(d.Console, "unknown command: %s\n", name)
		d.PrintHelp()
		return true
	}
	glog.V(2).Infof("command %s %q", cmd.Name, arg)
	cmd.Func(ctx, d.Console, arg)
	return true
}

// PrintHelp lists the commands.
func (d *Dispatcher) PrintHelp() {
	console.Println(d.Console, "Commands:")
	for _, cmd := range d.Commands() {
		usage := cmd.Name
		if cmd.Args != "" {
			usage += " " + cmd.Args
		}
		line := "  " + usage
		if len(cmd.Aliases) > 0 {
			line += " (" + strings.Join(cmd.Aliases, ", ") + ")"
		}
		console.Printf(d.Console, "%-42s %s\n", line, cmd.Help)
	}
}
