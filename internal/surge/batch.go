package surge

import (
	"strings"

	"github.com/John-Robertt/surge2clash/internal/model"
)

// Skipped counts lines that were neither accepted nor failed.
type Skipped struct {
	Comments   int `json:"comments"`
	Duplicates int `json:"duplicates"`
}

// Outcome is the result of parsing a multi-line input. Every non-blank line
// ends up in exactly one of Success, Failed, Skipped.Comments or
// Skipped.Duplicates.
type Outcome struct {
	Success []model.Node `json:"success"`
	Failed  []string     `json:"failed"`
	// Skipped is nil when nothing was skipped.
	Skipped *Skipped `json:"skipped,omitempty"`
}

// ParseNodes parses input line by line, keeping first-seen order and dropping
// nodes whose DedupKey was already accepted.
func ParseNodes(input string) Outcome {
	input = strings.TrimPrefix(input, "\uFEFF")

	out := Outcome{
		Success: make([]model.Node, 0),
		Failed:  make([]string, 0),
	}
	seen := make(map[model.DedupKey]struct{})
	comments, duplicates := 0, 0

	// Split on \n only; TrimSpace takes care of a trailing \r.
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			comments++
			continue
		}

		node, err := ParseNode(trimmed)
		if err != nil {
			out.Failed = append(out.Failed, trimmed)
			continue
		}
		key := node.DedupKey()
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		out.Success = append(out.Success, node)
	}

	if comments > 0 || duplicates > 0 {
		out.Skipped = &Skipped{Comments: comments, Duplicates: duplicates}
	}
	return out
}
