// Package index parses and rewrites the active-sessions index
// (.current-sessions), a list of blank-line separated blocks such as:
//
//	### Agent: main
//	- Session: 2025-08-11-1430-review.md
//	- Project: /home/me/code/app
//	- Branch: main
//	- Started: 2025-08-11T18:30:27Z
//
// A block with a "- Completed:" line is a finished session.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	agentPrefix     = "### Agent:"
	sessionPrefix   = "- Session:"
	projectPrefix   = "- Project:"
	branchPrefix    = "- Branch:"
	startedPrefix   = "- Started:"
	completedPrefix = "- Completed:"
)

// Block is one entry of the index. Raw holds the block text as read.
type Block struct {
	Raw       string
	Agent     string
	Session   string
	Project   string
	Branch    string
	Started   time.Time // zero when missing or unparseable
	Completed bool
}

// Active reports whether b is a session entry that has not been completed.
func (b Block) Active() bool { return b.Agent != "" && !b.Completed }

// key groups active sessions; ok is false when a component is missing.
func (b Block) key() (k [3]string, ok bool) {
	k = [3]string{b.Agent, b.Project, b.Branch}
	return k, b.Agent != "" && b.Project != "" && b.Branch != ""
}

// Parse splits data into blocks. Unrecognised lines are kept in Raw.
func Parse(data []byte) []Block {
	var (
		blocks []Block
		lines  []string
	)
	flush := func() {
		if len(lines) > 0 {
			blocks = append(blocks, parseBlock(lines))
			lines = nil
		}
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	flush()
	return blocks
}

func parseBlock(lines []string) Block {
	b := Block{Raw: strings.Join(lines, "\n")}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, agentPrefix):
			b.Agent = field(line, agentPrefix)
		case strings.HasPrefix(line, sessionPrefix):
			b.Session = field(line, sessionPrefix)
		case strings.HasPrefix(line, projectPrefix):
			b.Project = field(line, projectPrefix)
		case strings.HasPrefix(line, branchPrefix):
			b.Branch = field(line, branchPrefix)
		case strings.HasPrefix(line, startedPrefix):
			if t, err := time.Parse(time.RFC3339, field(line, startedPrefix)); err == nil {
				b.Started = t
			}
		case strings.HasPrefix(line, completedPrefix):
			b.Completed = true
		}
	}
	return b
}

func field(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

// Plan is the result of deduplicating an index.
type Plan struct {
	// Active are the sessions that stay active, in file order.
	Active []Block
	// Retired are older duplicates to be marked completed, in file order.
	Retired []Block
	// Rest are completed sessions and unrecognised blocks, kept verbatim.
	Rest []Block
}

// ActiveBefore is the number of active sessions in the input.
func (p Plan) ActiveBefore() int { return len(p.Active) + len(p.Retired) }

// Dedupe keeps the most recently started active session for each
// agent/project/branch and retires the others. Ties go to the later block.
// Active sessions missing one of the three keys are kept as they are.
func Dedupe(blocks []Block) Plan {
	winner := map[[3]string]int{}
	for i, b := range blocks {
		if !b.Active() {
			continue
		}
		k, ok := b.key()
		if !ok {
			continue
		}
		if j, seen := winner[k]; !seen || !b.Started.Before(blocks[j].Started) {
			winner[k] = i
		}
	}

	var p Plan
	for i, b := range blocks {
		if !b.Active() {
			p.Rest = append(p.Rest, b)
			continue
		}
		if k, ok := b.key(); ok && winner[k] != i {
			p.Retired = append(p.Retired, b)
			continue
		}
		p.Active = append(p.Active, b)
	}
	return p
}

// Render writes the index back: active sessions first, then the retired
// ones stamped with a Completed time of now, then the rest.
func (p Plan) Render(now time.Time) []byte {
	var parts []string
	for _, b := range p.Active {
		parts = append(parts, b.Raw)
	}
	stamp := now.UTC().Format(time.RFC3339)
	for _, b := range p.Retired {
		parts = append(parts, b.Raw+"\n"+completedPrefix+" "+stamp)
	}
	for _, b := range p.Rest {
		parts = append(parts, b.Raw)
	}
	if len(parts) == 0 {
		return nil
	}
	return []byte(strings.Join(parts, "\n\n") + "\n")
}

// WriteFile replaces path with data through a temporary file in the same
// directory, keeping the current permission bits.
func WriteFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
