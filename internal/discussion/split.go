// internal/discussion/split.go
package discussion

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/0xfaultline/chatmux/api/schemas"
)

// Regex uses \x60 for backticks because Go raw strings cannot contain them.
var fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

type splitEnvelope struct {
	Subtasks []schemas.Subtask `json:"subtasks"`
}

// ParseSubtasks locates a JSON object with a "subtasks" key anywhere in the
// raw model output. Models wrap JSON in markdown fences or conversational
// prose; both are handled. The boolean reports whether parsing produced a
// usable 3-item decomposition; callers fall back to DefaultSubtasks when it
// did not, rather than failing the request.
func ParseSubtasks(raw string) ([]schemas.Subtask, bool) {
	raw = strings.TrimSpace(raw)
	candidate := raw

	if m := fencedJSONRegex.FindStringSubmatch(raw); len(m) > 1 {
		candidate = m[1]
	} else if !strings.HasPrefix(raw, "{") {
		fb := strings.Index(raw, "{")
		lb := strings.LastIndex(raw, "}")
		if fb == -1 || lb <= fb {
			return nil, false
		}
		candidate = raw[fb : lb+1]
	}

	var env splitEnvelope
	if err := json.Unmarshal([]byte(candidate), &env); err != nil {
		return nil, false
	}
	if len(env.Subtasks) < 3 {
		return nil, false
	}

	subtasks := env.Subtasks[:3]
	for i := range subtasks {
		if strings.TrimSpace(subtasks[i].Task) == "" {
			return nil, false
		}
		subtasks[i].ID = i + 1
		if subtasks[i].Focus == "" {
			subtasks[i].Focus = fmt.Sprintf("aspect %d", i+1)
		}
	}
	return subtasks, true
}

// DefaultSubtasks is the fixed decomposition used when the split phase's
// output yields nothing parsable.
func DefaultSubtasks(question string) []schemas.Subtask {
	return []schemas.Subtask{
		{ID: 1, Task: fmt.Sprintf("Analyze the technical dimension of: %s", question), Focus: "technical"},
		{ID: 2, Task: fmt.Sprintf("Analyze the practical dimension of: %s", question), Focus: "practical"},
		{ID: 3, Task: fmt.Sprintf("Analyze the risks and downsides of: %s", question), Focus: "risk"},
	}
}
