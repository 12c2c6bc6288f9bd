package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Allowlist registers modules, paths, and commands considered safe.
// Consulted independently of scoring.
type Allowlist struct {
	modules  map[string]bool
	paths    []string
	commands map[string]bool
}

var safeModules = []string{
	"json", "math", "datetime", "collections",
	"itertools", "functools", "dataclasses",
	"typing", "enum", "re", "string",
	"random", "hashlib", "base64", "uuid",
}

// NewAllowlist creates an allowlist seeded with the safe module set
func NewAllowlist() *Allowlist {
	a := &Allowlist{
		modules:  make(map[string]bool, len(safeModules)),
		commands: make(map[string]bool),
	}
	for _, m := range safeModules {
		a.modules[m] = true
	}
	return a
}

// AddModule marks a module as allowed
func (a *Allowlist) AddModule(module string) { a.modules[module] = true }

// AddPath marks a directory tree as allowed
func (a *Allowlist) AddPath(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	a.paths = append(a.paths, path)
}

// AddCommand marks a command binary as allowed
func (a *Allowlist) AddCommand(command string) { a.commands[command] = true }

// ModuleAllowed reports whether a module is on the allowlist
func (a *Allowlist) ModuleAllowed(module string) bool { return a.modules[module] }

// PathAllowed reports whether the path falls under an allowed tree
func (a *Allowlist) PathAllowed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, allowed := range a.paths {
		if rel, err := filepath.Rel(allowed, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// CommandAllowed reports whether the command's binary is allowed
func (a *Allowlist) CommandAllowed(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	return a.commands[fields[0]]
}

// Modules returns the allowed modules, sorted
func (a *Allowlist) Modules() []string {
	out := make([]string, 0, len(a.modules))
	for m := range a.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Denylist registers dangerous modules and code patterns. CheckCode is
// a hard veto, distinct from the Scorer's soft score.
type Denylist struct {
	modules  map[string]bool
	patterns []*regexp.Regexp
}

var dangerousModules = []string{
	"os", "subprocess", "shutil", "sys",
	"ctypes", "socket", "pickle", "marshal",
}

var dangerousPatterns = []string{
	`rm\s+-rf`,
	`del\s+/[fs]`,
	`format\s+[a-z]:`,
	`__import__\s*\(`,
	`exec\s*\(`,
	`eval\s*\(`,
	`compile\s*\(`,
	`globals\s*\(`,
	`locals\s*\(`,
	`getattr\s*\(\s*__builtins__`,
	`os\.system\s*\(`,
}

// NewDenylist creates a denylist seeded with the dangerous module and
// pattern sets.
func NewDenylist() *Denylist {
	d := &Denylist{modules: make(map[string]bool, len(dangerousModules))}
	for _, m := range dangerousModules {
		d.modules[m] = true
	}
	for _, p := range dangerousPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile("(?i)"+p))
	}
	return d
}

// AddModule marks a module as denied
func (d *Denylist) AddModule(module string) { d.modules[module] = true }

// AddPattern registers an additional dangerous pattern. Invalid regexes
// are rejected.
func (d *Denylist) AddPattern(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compiling deny pattern: %w", err)
	}
	d.patterns = append(d.patterns, re)
	return nil
}

// ModuleDenied reports whether a module is on the denylist
func (d *Denylist) ModuleDenied(module string) bool { return d.modules[module] }

// CheckCode scans the code for denied module references and patterns.
// It returns ok=false with every violation found.
func (d *Denylist) CheckCode(code string) (bool, []string) {
	var violations []string

	for _, re := range d.patterns {
		if re.MatchString(code) {
			violations = append(violations, fmt.Sprintf("denied pattern: %s", re.String()))
		}
	}
	for _, module := range d.Modules() {
		if moduleReferenced(code, module) {
			violations = append(violations, fmt.Sprintf("denied module: %s", module))
		}
	}

	return len(violations) == 0, violations
}

// Modules returns the denied modules, sorted
func (d *Denylist) Modules() []string {
	out := make([]string, 0, len(d.modules))
	for m := range d.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// moduleReferenced matches imports and attribute access of the module
// name on word boundaries, so "os.system" hits "os" but "photos" does
// not.
func moduleReferenced(code, module string) bool {
	re := regexp.MustCompile(`(?m)(^|[^\w.])` + regexp.QuoteMeta(module) + `(\.|\s|$|\()`)
	return re.MatchString(code)
}
