// Package promptbuild assembles the fixed system prompt handed to the
// context manager: the response-format instructions plus a catalogue of
// every registered tool, built fresh on each run so a newly registered tool
// shows up without touching the prompt text itself.
package promptbuild

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

const responseFormat = `You are an autonomous agent working step by step toward the user's goal.

On every turn, respond using exactly this format, each marker alone on its
own line:

<THOUGHT>
One or two sentences of reasoning about what to do next.
<TOOL>
tool_name
<PARAMS>
{"key": "value"}
<END>

When you are ready to answer the user instead of calling a tool, call the
finish tool with your answer as final_answer. Never call finish as anything
other than a tool call in this format.

Call at most one tool per turn. Wait for its Observation before deciding
what to do next. If a tool call fails, say in one sentence why it failed
and what you will try instead before retrying.

Inline images appear as [IMAGE_DATA:<base64>] or [PAGE_<n>_IMAGE_DATA:<base64>]
markers embedded directly in message content; there is no separate
attachment list.`

// Build returns the system prompt: the fixed response-format instructions
// followed by a catalogue of every tool in registry.
func Build(registry *agent.ToolRegistry) string {
	var lines []string
	lines = append(lines, responseFormat)

	tools := registry.List()
	if len(tools) > 0 {
		lines = append(lines, "", "Available tools:")
		for _, t := range tools {
			lines = append(lines, toolLine(t))
		}
	}

	return strings.Join(lines, "\n")
}

func toolLine(t agent.Tool) string {
	return fmt.Sprintf("- %s (%s): %s", t.Name(), t.SideEffectClass(), t.Description())
}
