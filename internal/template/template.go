// Package template renders prompt templates with double-brace placeholders.
//
// Substitution is literal: each "{{name}}" is replaced by the bound text with
// no expression evaluation, conditionals, or escaping. The package performs
// no I/O.
package template

import (
	"regexp"
	"slices"
	"sort"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// placeholderPattern matches a double-brace delimited identifier.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Extract returns the distinct placeholder names in tmpl, sorted.
func Extract(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names
}

// ValidateDeclaration checks that the placeholders used in tmpl are exactly
// the declared variables. On mismatch it returns a
// *domain.TemplateMismatchError listing both directions of the difference.
func ValidateDeclaration(tmpl string, declared []string) error {
	used := Extract(tmpl)

	declaredSet := make(map[string]struct{}, len(declared))
	for _, v := range declared {
		declaredSet[v] = struct{}{}
	}

	var undeclared, unused []string
	for _, name := range used {
		if _, ok := declaredSet[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	for name := range declaredSet {
		if !slices.Contains(used, name) {
			unused = append(unused, name)
		}
	}

	if len(undeclared) == 0 && len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return &domain.TemplateMismatchError{Undeclared: undeclared, Unused: unused}
}

// Render substitutes bindings for the declared variables of tmpl in a single
// pass over the template, so bound text is never scanned for placeholders.
//
// It fails with *domain.UnboundVariableError when a declared variable has no
// binding, and with *domain.UnsubstitutedPlaceholderError when the template
// uses a name it did not declare or a bound value itself looks like a
// placeholder.
func Render(tmpl string, variables []string, bindings map[string]string) (string, error) {
	declared := make(map[string]string, len(variables))
	for _, name := range variables {
		value, ok := bindings[name]
		if !ok {
			return "", &domain.UnboundVariableError{Variable: name}
		}
		declared[name] = value
	}

	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		if value, ok := declared[m[2:len(m)-2]]; ok {
			return value
		}
		return m
	})

	if left := Extract(out); len(left) > 0 {
		return "", &domain.UnsubstitutedPlaceholderError{Names: left}
	}
	return out, nil
}
