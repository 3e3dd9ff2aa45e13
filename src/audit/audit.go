// Package audit reports which files under the assistant's config directory
// hold user data that an upgrade must never modify, and which are tool files
// an upgrade may replace. It never writes.
package audit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"session-backup/src/layout"
)

// Class is the upgrade classification of a path.
type Class int

const (
	Unknown Class = iota
	Protected
	Updatable
)

func (c Class) String() string {
	switch c {
	case Protected:
		return "protected"
	case Updatable:
		return "updatable"
	default:
		return "unknown"
	}
}

// Rule is one compiled path pattern.
type Rule struct {
	Pattern     string // slash-separated absolute pattern
	Display     string // pattern relative to home
	Description string
	g           glob.Glob
}

// Count is the number of existing files matching a rule.
type Count struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Files       int    `json:"files"`
}

// Report is the result of an audit run.
type Report struct {
	Protected []Count `json:"protected"`
	Updatable []Count `json:"updatable"`
}

// Auditor classifies paths of a layout.
type Auditor struct {
	layout    layout.Layout
	protected []Rule
	updatable []Rule
}

// New compiles the protected and updatable rules for l.
func New(l layout.Layout) (*Auditor, error) {
	a := &Auditor{layout: l}
	protected := [][3]string{
		{l.SessionsDir, "*.md", "session files"},
		{l.CurrentSessionsFile, "", "active sessions index"},
		{l.BackupRoot, "**", "session backups"},
		{filepath.Join(l.SessionsDir, "backups"), "**", "legacy session backups"},
		{l.SessionConfigFile, "", "session configuration"},
		{filepath.Join(l.ClaudeDir, "CLAUDE.md"), "", "global CLAUDE.md"},
	}
	updatable := [][3]string{
		{l.HooksDir, "*.sh", "hook scripts"},
		{l.CommandsDir, "*.md", "slash commands"},
		{l.BinDir, "*", "CLI tools"},
	}
	for _, p := range protected {
		r, err := compile(l, p[0], p[1], p[2])
		if err != nil {
			return nil, err
		}
		a.protected = append(a.protected, r)
	}
	for _, p := range updatable {
		r, err := compile(l, p[0], p[1], p[2])
		if err != nil {
			return nil, err
		}
		a.updatable = append(a.updatable, r)
	}
	return a, nil
}

func compile(l layout.Layout, base, suffix, desc string) (Rule, error) {
	pattern := glob.QuoteMeta(filepath.ToSlash(base))
	display := filepath.ToSlash(l.Rel(base))
	if suffix != "" {
		pattern += "/" + suffix
		display += "/" + suffix
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return Rule{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return Rule{Pattern: pattern, Display: display, Description: desc, g: g}, nil
}

// Classify reports whether path is protected user data, an updatable tool
// file, or neither. Protected rules win over updatable ones.
func (a *Auditor) Classify(path string) Class {
	p := filepath.ToSlash(filepath.Clean(path))
	for _, r := range a.protected {
		if r.g.Match(p) {
			return Protected
		}
	}
	for _, r := range a.updatable {
		if r.g.Match(p) {
			return Updatable
		}
	}
	return Unknown
}

// Run counts the existing files matching each rule.
func (a *Auditor) Run() (*Report, error) {
	rep := &Report{
		Protected: make([]Count, len(a.protected)),
		Updatable: make([]Count, len(a.updatable)),
	}
	for i, r := range a.protected {
		rep.Protected[i] = Count{Pattern: r.Display, Description: r.Description}
	}
	for i, r := range a.updatable {
		rep.Updatable[i] = Count{Pattern: r.Display, Description: r.Description}
	}

	for _, root := range a.roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			p := filepath.ToSlash(path)
			for i, r := range a.protected {
				if r.g.Match(p) {
					rep.Protected[i].Files++
				}
			}
			for i, r := range a.updatable {
				if r.g.Match(p) {
					rep.Updatable[i].Files++
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return rep, nil
}

// roots returns the directories to walk, dropping any nested in another.
func (a *Auditor) roots() []string {
	candidates := []string{a.layout.ClaudeDir, a.layout.SessionsDir, a.layout.BackupRoot, filepath.Dir(a.layout.SessionConfigFile)}
	var out []string
	for i, c := range candidates {
		nested := false
		for j, o := range candidates {
			if i == j {
				continue
			}
			if within(o, c) && (o != c || j < i) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintln(w, "Update Safety Check")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Protected User Data:")
	for _, c := range r.Protected {
		if c.Files == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s: %d files (protected)\n", c.Pattern, c.Files)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Updatable Components:")
	for _, c := range r.Updatable {
		fmt.Fprintf(w, "  %s: %d files (will be updated)\n", c.Pattern, c.Files)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Update is SAFE - user data will not be touched")
}
