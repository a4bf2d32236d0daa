package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// CompileMode selects how a rule line is turned into a pattern
type CompileMode int

const (
	// Literal rules are regular expressions used as-is
	Literal CompileMode = iota
	// Wildcard rules use shell wildcards (*, ?, [...]) and are translated to regular expressions
	Wildcard
)

// String returns the mode name
func (m CompileMode) String() string {
	switch m {
	case Literal:
		return "literal"
	case Wildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("CompileMode(%d)", int(m))
	}
}

// compiler returns the translation strategy for the mode
func (m CompileMode) compiler() func(string) (*regexp.Regexp, error) {
	if m == Wildcard {
		return compileWildcard
	}
	return compileLiteral
}

// InvalidPatternError reports a rule that could not be compiled
type InvalidPatternError struct {
	Rule string
	Err  error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("failed to parse ignore rule %q: %v", e.Rule, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Pattern is a compiled ignore rule
type Pattern struct {
	rule string
	re   *regexp.Regexp
}

// Compile compiles a single rule using the given mode
func Compile(rule string, mode CompileMode) (Pattern, error) {
	re, err := mode.compiler()(rule)
	if err != nil {
		return Pattern{}, &InvalidPatternError{Rule: rule, Err: err}
	}
	return Pattern{rule: rule, re: re}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(rule string, mode CompileMode) Pattern {
	p, err := Compile(rule, mode)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether the whole path matches the rule
func (p Pattern) Match(path string) bool {
	return p.re != nil && p.re.MatchString(path)
}

// Rule returns the source text of the pattern
func (p Pattern) Rule() string {
	return p.rule
}

// RuleSet is an immutable list of compiled patterns
type RuleSet struct {
	patterns []Pattern
}

// NewRuleSet builds a rule set from already compiled patterns
func NewRuleSet(patterns ...Pattern) RuleSet {
	return RuleSet{patterns: append([]Pattern(nil), patterns...)}
}

// Matches returns true if any pattern in the set matches path
func (s RuleSet) Matches(path string) bool {
	for _, p := range s.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Predicate returns Matches as a function value
func (s RuleSet) Predicate() func(string) bool {
	return s.Matches
}

// Len returns the number of patterns in the set
func (s RuleSet) Len() int {
	return len(s.patterns)
}

// Load reads a rule file and compiles every non-blank, non-comment line.
// A missing file yields an empty rule set and a warning.
func Load(path string, mode CompileMode, logger *slog.Logger) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("ignore file does not exist", "path", path)
			return RuleSet{}, nil
		}
		return RuleSet{}, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	set, err := Parse(f, mode)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}

	logger.Debug("loaded ignore rules", "path", path, "mode", mode.String(), "count", set.Len())
	for _, p := range set.patterns {
		logger.Debug("ignore rule", "rule", p.Rule())
	}
	return set, nil
}

// Parse compiles rules read from r
func Parse(r io.Reader, mode CompileMode) (RuleSet, error) {
	var patterns []Pattern

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := Compile(line, mode)
		if err != nil {
			return RuleSet{}, err
		}
		patterns = append(patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return RuleSet{}, fmt.Errorf("failed to read ignore rules: %w", err)
	}

	return RuleSet{patterns: patterns}, nil
}

func compileLiteral(rule string) (*regexp.Regexp, error) {
	// Validate on its own first so errors point at the user's text.
	if _, err := regexp.Compile(rule); err != nil {
		return nil, err
	}
	return regexp.Compile(`^(?:` + rule + `)$`)
}

func compileWildcard(rule string) (*regexp.Regexp, error) {
	return regexp.Compile(TranslateWildcard(rule))
}
