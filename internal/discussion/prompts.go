// internal/discussion/prompts.go
package discussion

import (
	"fmt"
	"strings"

	"github.com/0xfaultline/chatmux/api/schemas"
)

func openingPrompt(role schemas.Role, question string) string {
	return fmt.Sprintf(
		"You are %s, %s. A panel discussion is starting.\n\nQuestion: %s\n\nGive your opening position.",
		role.DisplayName, role.Description, question)
}

func critiquePrompt(role schemas.Role, prev schemas.Turn) string {
	return fmt.Sprintf(
		"You are %s, %s. %s just said:\n\n%s\n\nCritique or extend that contribution from your perspective.",
		role.DisplayName, role.Description, prev.DisplayName, prev.Response)
}

func synthesisPrompt(role schemas.Role, question string, prev1, prev2 schemas.Turn) string {
	return fmt.Sprintf(
		"You are %s, %s. The discussion of the question %q is closing. The two most recent contributions were:\n\n%s said:\n%s\n\n%s said:\n%s\n\nGive the final synthesis of the whole discussion.",
		role.DisplayName, role.Description, question,
		prev1.DisplayName, prev1.Response,
		prev2.DisplayName, prev2.Response)
}

func splitPrompt(question string) string {
	return fmt.Sprintf(
		"Decompose the following question into exactly 3 sub-tasks, each with a short focus label.\n\nQuestion: %s\n\nAnswer with ONLY a JSON object of this exact shape:\n{\"subtasks\": [{\"id\": 1, \"task\": \"...\", \"focus\": \"...\"}, {\"id\": 2, \"task\": \"...\", \"focus\": \"...\"}, {\"id\": 3, \"task\": \"...\", \"focus\": \"...\"}]}",
		question)
}

func subtaskPrompt(role schemas.Role, question string, st schemas.Subtask) string {
	return fmt.Sprintf(
		"You are %s, %s. The overall question is: %s\n\nYour assigned sub-task (focus: %s) is:\n%s\n\nAnswer your sub-task thoroughly.",
		role.DisplayName, role.Description, question, st.Focus, st.Task)
}

func reviewPrompt(reviewer schemas.Role, target schemas.Role, targetText string) string {
	return fmt.Sprintf(
		"You are %s, %s. Review the following answer written by %s. Point out gaps, mistakes and what it gets right.\n\n%s",
		reviewer.DisplayName, reviewer.Description, target.DisplayName, targetText)
}

func summaryPrompt(question string, panel []schemas.Role, executions, reviews []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Consolidate the panel's work on the question: %s\n\n", question)
	for i, text := range executions {
		fmt.Fprintf(&sb, "--- Answer by %s ---\n%s\n\n", panel[i].DisplayName, text)
	}
	for i, text := range reviews {
		target := panel[(i+1)%len(panel)]
		fmt.Fprintf(&sb, "--- Review of %s's answer, by %s ---\n%s\n\n",
			target.DisplayName, panel[i].DisplayName, text)
	}
	sb.WriteString("Write one consolidated answer with these sub-headings: Complete answer, Key points, Practical recommendations.")
	return sb.String()
}
