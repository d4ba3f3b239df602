// Package console implements the command/configuration virtual machine: a
// single-threaded cooperative interpreter over a queue of command lines,
// backed by a registry of handlers, a table of string variables, and a
// table of alias macros.
package console

import (
	"strconv"
	"strings"

	"github.com/ernie/quakecore/internal/catalog"
)

// Flag is the Console's tri-state execution status.
type Flag int

const (
	Stopped Flag = iota
	Running
	Suspended
)

// Handler is a registered command's implementation. It receives the Console
// itself so built-ins like alias/exec/wait can mutate Console state
// directly instead of returning declarative operations.
type Handler func(c *Console, args []string)

// Store persists archived variables across process restarts. cvars.Store
// implements this against sqlite; a nil Store makes archiving a no-op.
type Store interface {
	Load() (map[string]string, error)
	Save(name, value string) error
}

type variable struct {
	value    string
	archived bool
}

// Console holds the full interpreter state: variables, aliases, the
// registered command set, and the pending line queue.
type Console struct {
	catalog  *catalog.Catalog
	store    Store
	vars     map[string]*variable
	aliases  map[string]string
	commands map[string]Handler
	queue    []string
	flag     Flag
	quit     bool
}

// New constructs a Console wired to cat for exec and to store for archived
// variable persistence (either may be nil).
func New(cat *catalog.Catalog, store Store) *Console {
	c := &Console{
		catalog:  cat,
		store:    store,
		vars:     make(map[string]*variable),
		aliases:  make(map[string]string),
		commands: make(map[string]Handler),
		flag:     Stopped,
	}
	c.registerBuiltins()
	if store != nil {
		if loaded, err := store.Load(); err == nil {
			for name, value := range loaded {
				c.vars[name] = &variable{value: value, archived: true}
			}
		}
	}
	return c
}

func (c *Console) registerBuiltins() {
	c.RegisterCommand("alias", builtinAlias)
	c.RegisterCommand("exec", builtinExec)
	c.RegisterCommand("wait", builtinWait)
	c.RegisterCommand("quit", builtinQuit)
	c.RegisterCommand("seta", builtinSeta)
}

// RegisterCommand inserts or replaces the handler for name.
func (c *Console) RegisterCommand(name string, h Handler) {
	c.commands[strings.ToLower(name)] = h
}

// SetVariable sets name = value. If the variable is already archived (or
// becomes archived via seta), the value is written through to the Store.
func (c *Console) SetVariable(name, value string) {
	key := strings.ToLower(name)
	v, ok := c.vars[key]
	if !ok {
		v = &variable{}
		c.vars[key] = v
	}
	v.value = value
	if v.archived && c.store != nil {
		_ = c.store.Save(key, value)
	}
}

// setArchived marks name as archived and persists its current value.
func (c *Console) setArchived(name, value string) {
	key := strings.ToLower(name)
	v, ok := c.vars[key]
	if !ok {
		v = &variable{}
		c.vars[key] = v
	}
	v.value = value
	v.archived = true
	if c.store != nil {
		_ = c.store.Save(key, value)
	}
}

// GetVariable returns the string value of name and whether it is set.
func (c *Console) GetVariable(name string) (string, bool) {
	v, ok := c.vars[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return v.value, true
}

// GetInt parses name as a base-10 integer.
func (c *Console) GetInt(name string) (int, bool) {
	s, ok := c.GetVariable(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// GetFloat parses name as a float64.
func (c *Console) GetFloat(name string) (float64, bool) {
	s, ok := c.GetVariable(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// GetBool parses name as a boolean ("1"/"true"/"yes" and their negations,
// case-insensitively).
func (c *Console) GetBool(name string) (bool, bool) {
	s, ok := c.GetVariable(name)
	if !ok {
		return false, false
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// AppendScript tokenizes text into lines, strips "//" comments and blank
// lines, and pushes the result to the tail of the pending queue.
func (c *Console) AppendScript(text string) {
	c.queue = append(c.queue, tokenizeScript(text)...)
}

// PrependScript is AppendScript but pushes to the head of the queue, used
// for alias expansion and exec.
func (c *Console) PrependScript(text string) {
	c.queue = append(tokenizeScript(text), c.queue...)
}

func tokenizeScript(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := raw
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		// A ';' acts as a line separator within a single physical line, as
		// used by bind's quoted multi-command expansions. A ';' inside a
		// quoted token is part of that token's body, not a separator.
		for _, part := range splitStatements(line) {
			part = strings.TrimSpace(part)
			if part != "" {
				lines = append(lines, part)
			}
		}
	}
	return lines
}

// splitStatements splits line on ';' the way the Quake console's command
// buffer does: a ';' inside a double-quoted span does not separate
// statements, so a quoted alias or bind body carrying its own ';'-joined
// commands survives intact until that line is itself executed.
func splitStatements(line string) []string {
	var parts []string
	var buf strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			buf.WriteRune(r)
		case r == ';' && !inQuotes:
			parts = append(parts, buf.String())
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, buf.String())
	return parts
}

// splitFields splits line into whitespace-separated tokens the way
// COM_Parse does: a double-quoted span is one token regardless of the
// whitespace or ';' it contains, and its surrounding quotes are stripped.
func splitFields(line string) []string {
	var tokens []string
	var buf strings.Builder
	inQuotes := false
	hasToken := false
	flush := func() {
		if hasToken {
			tokens = append(tokens, buf.String())
			buf.Reset()
			hasToken = false
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasToken = true
		case !inQuotes && (r == ' ' || r == '\t'):
			flush()
		default:
			buf.WriteRune(r)
			hasToken = true
		}
	}
	flush()
	return tokens
}

// Execute drains the pending queue, applying the dispatch rule to each
// line, until the queue empties or a handler suspends execution.
func (c *Console) Execute() {
	c.flag = Running
	for len(c.queue) > 0 {
		line := c.queue[0]
		c.queue = c.queue[1:]

		tokens := splitFields(line)
		if len(tokens) == 0 {
			continue
		}
		name := tokens[0]
		args := tokens[1:]

		if expansion, ok := c.aliases[strings.ToLower(name)]; ok {
			c.PrependScript(expansion)
			continue
		}
		if handler, ok := c.commands[strings.ToLower(name)]; ok {
			handler(c, args)
			if c.flag == Suspended {
				return
			}
			continue
		}
		c.SetVariable(name, strings.Join(args, " "))
	}
	c.flag = Stopped
}

// Flag returns the interpreter's current execution status.
func (c *Console) Flag() Flag { return c.flag }

func builtinAlias(c *Console, args []string) {
	if len(args) == 0 {
		return
	}
	name := strings.ToLower(args[0])
	if len(args) == 1 {
		delete(c.aliases, name)
		return
	}
	c.aliases[name] = strings.Join(args[1:], " ")
}

func builtinExec(c *Console, args []string) {
	if len(args) == 0 || c.catalog == nil {
		return
	}
	data, err := c.catalog.Read(args[0])
	if err != nil {
		// Legacy-compatible: a missing exec target is silently skipped.
		return
	}
	c.PrependScript(string(data))
}

func builtinWait(c *Console, _ []string) {
	c.flag = Suspended
}

func builtinQuit(c *Console, _ []string) {
	c.flag = Stopped
	c.queue = nil
	c.quit = true
}

func builtinSeta(c *Console, args []string) {
	if len(args) == 0 {
		return
	}
	name := args[0]
	value := strings.Join(args[1:], " ")
	c.setArchived(name, value)
}

// Quit reports whether the quit command has been run. Hosts (cmd/quaked,
// cmd/quakeclient) poll this after Execute returns and exit the process
// themselves, so the console package never calls os.Exit directly.
func (c *Console) Quit() bool { return c.quit }
