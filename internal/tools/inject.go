package tools

import (
	"os"
	"regexp"
	"strings"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// writeInject implements the Inject frontmatter mode shared by the
// Template tool (rendering a body first) and the Patch tool (no template
// rendering, content supplied verbatim). Exactly one anchor strategy
// (after/before/at/atLine) is expected to be set. Nothing rejects a step
// that sets more than one; the first one found wins in that declaration
// order.
func writeInject(target, content, after, before, at string, atLine int, skipIf string, dryRun bool) (bool, error) {
	existing, err := os.ReadFile(target)
	if err != nil {
		return false, rerrors.IOError(target, err)
	}
	text := string(existing)

	if skipIf != "" {
		re, err := regexp.Compile(skipIf)
		if err != nil {
			return false, rerrors.Wrap(rerrors.CodeInjectAnchorNotFound, "invalid skip_if pattern", err).WithContext("target", target)
		}
		if re.MatchString(text) {
			return false, nil
		}
	}

	lines := strings.Split(text, "\n")

	insertAt := -1
	switch {
	case after != "":
		re, err := regexp.Compile(after)
		if err != nil {
			return false, rerrors.Wrap(rerrors.CodeInjectAnchorNotFound, "invalid after pattern", err).WithContext("target", target)
		}
		for i, line := range lines {
			if re.MatchString(line) {
				insertAt = i + 1
				break
			}
		}
	case before != "":
		re, err := regexp.Compile(before)
		if err != nil {
			return false, rerrors.Wrap(rerrors.CodeInjectAnchorNotFound, "invalid before pattern", err).WithContext("target", target)
		}
		for i, line := range lines {
			if re.MatchString(line) {
				insertAt = i
				break
			}
		}
	case at == "start":
		insertAt = 0
	case at == "end":
		insertAt = len(lines)
	case atLine > 0:
		insertAt = atLine - 1 // atLine is 1-indexed
	}

	if insertAt < 0 {
		strategy := after
		if strategy == "" {
			strategy = before
		}
		if strategy == "" {
			strategy = at
		}
		return false, rerrors.InjectAnchorNotFound(target, strategy)
	}
	if insertAt > len(lines) {
		insertAt = len(lines)
	}

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:insertAt]...)
	inserted = append(inserted, strings.TrimSuffix(content, "\n"))
	inserted = append(inserted, lines[insertAt:]...)

	if dryRun {
		return true, nil
	}
	if err := os.WriteFile(target, []byte(strings.Join(inserted, "\n")), 0o644); err != nil {
		return false, rerrors.IOError(target, err)
	}
	return true, nil
}
