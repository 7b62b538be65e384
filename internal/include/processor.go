// Package include expands psql \i and \ir directives in schema files.
package include

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pgcompose/pgcompose/internal/logger"
)

// includeRegex matches "\i path" or "\ir path" on a line of its own, with an
// optional trailing semicolon.
var includeRegex = regexp.MustCompile(`^\s*\\(i|ir|include|include_relative)\s+([^\s;]+)\s*;?\s*$`)

// CycleError reports a file that includes itself, directly or not.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "circular include: " + strings.Join(e.Chain, " -> ")
}

// Processor resolves include directives below a base directory. Included
// files may not escape it.
type Processor struct {
	baseDir string
	stack   []string
}

// NewProcessor creates a processor rooted at baseDir.
func NewProcessor(baseDir string) *Processor {
	return &Processor{baseDir: baseDir}
}

// ProcessFile returns the content of filename with every include expanded.
// The file's own directory becomes the base directory.
func (p *Processor) ProcessFile(filename string) (string, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", filename, err)
	}
	p.baseDir = filepath.Dir(absPath)
	p.stack = nil
	return p.expand(absPath)
}

// ProcessDir concatenates every *.sql file directly inside dir, sorted by
// name, each with its includes expanded. Files pulled in by an include from
// another file of the directory are not read a second time.
func (p *Processor) ProcessDir(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(absDir, e.Name()))
		}
	}
	slices.Sort(files)

	p.baseDir = absDir
	included := make(map[string]bool)
	for _, f := range files {
		targets, err := p.directTargets(f)
		if err != nil {
			return "", err
		}
		for _, t := range targets {
			included[t] = true
		}
	}

	var parts []string
	for _, f := range files {
		if included[f] {
			logger.Get().Debug("skipping file already included by a sibling", "file", f)
			continue
		}
		p.stack = nil
		content, err := p.expand(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, strings.TrimRight(content, "\n"))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n") + "\n", nil
}

func (p *Processor) expand(filename string) (string, error) {
	if slices.Contains(p.stack, filename) {
		return "", &CycleError{Chain: append(slices.Clone(p.stack), filename)}
	}
	p.stack = append(p.stack, filename)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	content, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	lines := strings.Split(string(content), "\n")
	var out strings.Builder
	for i, line := range lines {
		m := includeRegex.FindStringSubmatch(line)
		if m == nil {
			out.WriteString(line)
			if i < len(lines)-1 {
				out.WriteString("\n")
			}
			continue
		}
		resolved, err := p.resolve(m[2], filepath.Dir(filename))
		if err != nil {
			return "", fmt.Errorf("%s:%d: %w", filename, i+1, err)
		}
		logger.Get().Debug("including file", "from", filename, "file", resolved)
		included, err := p.expand(resolved)
		if err != nil {
			return "", err
		}
		out.WriteString(included)
		if !strings.HasSuffix(included, "\n") {
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

// directTargets lists the files filename includes without expanding them.
func (p *Processor) directTargets(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	var targets []string
	for i, line := range strings.Split(string(content), "\n") {
		if m := includeRegex.FindStringSubmatch(line); m != nil {
			resolved, err := p.resolve(m[2], filepath.Dir(filename))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filename, i+1, err)
			}
			targets = append(targets, resolved)
		}
	}
	return targets, nil
}

// resolve joins an include path to the including file's directory and
// checks that it stays under the base directory.
func (p *Processor) resolve(includePath, currentDir string) (string, error) {
	if filepath.IsAbs(includePath) {
		return "", fmt.Errorf("absolute include path not allowed: %s", includePath)
	}
	absPath, err := filepath.Abs(filepath.Join(currentDir, filepath.Clean(includePath)))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseAbs, err := filepath.Abs(p.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute base path: %w", err)
	}
	rel, err := filepath.Rel(baseAbs, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("include path %s is outside the base directory %s", includePath, p.baseDir)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("included file does not exist: %s", includePath)
	}
	return absPath, nil
}
