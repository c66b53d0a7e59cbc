package aicore

import (
	"fmt"
	"regexp"
	"strings"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// AiBlockContext is the per-call configuration for ProcessAiBlocks: whether
// this is the collecting pass or the answering pass, the answers map for
// Pass 2, the Collector to feed in Pass 1, and the owning step's name (used
// only for error context).
type AiBlockContext struct {
	CollectMode bool
	Answers     map[string]string
	Collector   *Collector
	StepName    string
}

// tagStartRe matches either an opening `@name(args)` tag or a closing
// `@end`. Child tags (`@context`, `@prompt`, `@output`, `@example`) share
// the same shape as the top-level `@ai` tag, so one scanner handles every
// nesting level.
var tagStartRe = regexp.MustCompile(`@(\w+)\(([^)]*)\)|@end`)

// ProcessAiBlocks is the hand-rolled AST-preprocessor shim called for by
// §9: text/template cannot host a block tag that both suppresses its own
// output and receives a raw, un-rendered body callback, so `@ai(...) ... @end`
// blocks are extracted and resolved here before the remaining text is
// handed to text/template (§4.6.2).
func ProcessAiBlocks(body string, actx AiBlockContext) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(body) {
		loc := tagStartRe.FindStringSubmatchIndex(body[i:])
		if loc == nil {
			out.WriteString(body[i:])
			break
		}
		start, end := i+loc[0], i+loc[1]
		out.WriteString(body[i:start])
		matched := body[start:end]
		if matched == "@end" {
			return "", fmt.Errorf("aicore: unexpected @end outside any @ai block")
		}

		name := body[i+loc[2] : i+loc[3]]
		argsStr := body[i+loc[4] : i+loc[5]]
		bodyEnd, nextPos, err := findMatchingEnd(body, end)
		if err != nil {
			return "", err
		}
		inner := body[end:bodyEnd]

		if name != "ai" {
			// Only @ai is legal at template top level; @context/@prompt/
			// @output/@example only ever appear nested inside one. Pass an
			// unrecognized top-level tag through untouched rather than
			// erroring, since it may simply be literal "@word(...)" text.
			out.WriteString(matched)
			out.WriteString(inner)
			out.WriteString("@end")
			i = nextPos
			continue
		}

		substitution, err := processAiBlock(parseTagArgs(argsStr), inner, actx)
		if err != nil {
			return "", err
		}
		out.WriteString(substitution)
		i = nextPos
	}
	return out.String(), nil
}

// findMatchingEnd scans forward from pos (just past an opening tag's
// closing paren) counting nested opens/`@end`s until the balancing `@end`
// is found, returning its bounds and the position right after it.
func findMatchingEnd(src string, pos int) (bodyEnd, nextPos int, err error) {
	depth := 1
	i := pos
	for i < len(src) {
		loc := tagStartRe.FindStringSubmatchIndex(src[i:])
		if loc == nil {
			return 0, 0, fmt.Errorf("aicore: unterminated @ai block (missing @end)")
		}
		mstart, mend := i+loc[0], i+loc[1]
		if src[mstart:mend] == "@end" {
			depth--
			if depth == 0 {
				return mstart, mend, nil
			}
		} else {
			depth++
		}
		i = mend
	}
	return 0, 0, fmt.Errorf("aicore: unterminated @ai block (missing @end)")
}

func parseTagArgs(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(strings.Trim(kv[1], `"'`))
	}
	return out
}

// tagNode is one sibling tag found by scanTags.
type tagNode struct {
	Name string
	Args map[string]string
	Body string
}

// scanTags splits src into its top-level sibling tags plus the plain text
// outside them, without recursing — callers recurse explicitly (e.g.
// @output's body is rescanned for nested @example tags).
func scanTags(src string) (nodes []tagNode, plain string, err error) {
	var out strings.Builder
	i := 0
	for i < len(src) {
		loc := tagStartRe.FindStringSubmatchIndex(src[i:])
		if loc == nil {
			out.WriteString(src[i:])
			break
		}
		start, end := i+loc[0], i+loc[1]
		matched := src[start:end]
		if matched == "@end" {
			return nil, "", fmt.Errorf("aicore: unexpected @end")
		}
		out.WriteString(src[i:start])
		name := src[i+loc[2] : i+loc[3]]
		argsStr := src[i+loc[4] : i+loc[5]]
		bodyEnd, nextPos, err := findMatchingEnd(src, end)
		if err != nil {
			return nil, "", err
		}
		nodes = append(nodes, tagNode{Name: name, Args: parseTagArgs(argsStr), Body: src[end:bodyEnd]})
		i = nextPos
	}
	return nodes, out.String(), nil
}

// processAiBlock resolves one `@ai(key=...)...@end` block's child tags and
// either records them with the Collector (collect mode) or substitutes the
// resolved answer (answer mode), per §4.6.2.
func processAiBlock(args map[string]string, inner string, actx AiBlockContext) (string, error) {
	key := args["key"]
	if key == "" {
		return "", fmt.Errorf("aicore: @ai block missing required key= argument")
	}

	children, _, err := scanTags(inner)
	if err != nil {
		return "", err
	}

	var prompt string
	havePrompt := false
	var contexts []string
	var outputDescription string
	var examples []string

	for _, c := range children {
		switch c.Name {
		case "context":
			contexts = append(contexts, strings.TrimSpace(c.Body))
		case "prompt":
			prompt = strings.TrimSpace(c.Body)
			havePrompt = true
		case "output":
			outChildren, plain, err := scanTags(c.Body)
			if err != nil {
				return "", err
			}
			for _, oc := range outChildren {
				if oc.Name == "example" {
					examples = append(examples, strings.TrimSpace(oc.Body))
				}
			}
			outputDescription = strings.TrimSpace(plain)
		}
	}
	if !havePrompt {
		return "", fmt.Errorf("aicore: @ai block %q is missing its required @prompt", key)
	}

	if actx.CollectMode {
		if actx.Collector != nil {
			for _, c := range contexts {
				actx.Collector.AddContext(key, c)
			}
			actx.Collector.RegisterAiBlock(key, prompt, outputDescription, examples)
		}
		return "", nil
	}

	if actx.Answers != nil {
		if ans, ok := actx.Answers[key]; ok {
			return ans, nil
		}
	}
	if len(examples) > 0 {
		return examples[0], nil
	}
	return "", rerrors.AIAnswerMissing(key)
}
