// Package formatter renders one-line job summaries from {{variable}}
// templates and named presets, for status bars and shell prompts.
package formatter

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplateEngine provides template parsing and variable substitution.
type TemplateEngine interface {
	// Parse returns the variables found in the template, without duplicates.
	Parse(template string) ([]string, error)

	// Substitute replaces variables in the template with values from the context.
	Substitute(template string, ctx VariableContext) (string, error)

	// Validate checks the delimiters and that every variable is known.
	Validate(template string) error
}

type templateEngine struct {
	variablePattern *regexp.Regexp
	resolver        VariableResolver
}

// NewTemplateEngine creates a new template engine instance.
func NewTemplateEngine() TemplateEngine {
	return &templateEngine{
		variablePattern: regexp.MustCompile(`\{\{([a-z0-9-]+)\}\}`),
		resolver:        NewVariableResolver(),
	}
}

func (te *templateEngine) Parse(template string) ([]string, error) {
	if template == "" {
		return []string{}, nil
	}

	seen := make(map[string]bool)
	variables := []string{}
	for _, match := range te.variablePattern.FindAllStringSubmatch(template, -1) {
		if name := match[1]; !seen[name] {
			variables = append(variables, name)
			seen[name] = true
		}
	}
	return variables, nil
}

func (te *templateEngine) Substitute(template string, ctx VariableContext) (string, error) {
	if template == "" {
		return "", nil
	}

	var resolveErr error
	result := te.variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := te.variablePattern.FindStringSubmatch(match)[1]
		value, err := te.resolver.Resolve(name, ctx)
		if err != nil {
			resolveErr = err
			return match
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

func (te *templateEngine) Validate(template string) error {
	openCount := strings.Count(template, "{{")
	closeCount := strings.Count(template, "}}")
	if openCount != closeCount {
		return fmt.Errorf("mismatched variable delimiters: %d opens, %d closes", openCount, closeCount)
	}

	names, _ := te.Parse(template)
	for _, name := range names {
		if _, err := te.resolver.Resolve(name, VariableContext{}); err != nil {
			return err
		}
	}
	return nil
}
