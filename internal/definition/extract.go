package definition

import (
	"regexp"
	"strings"
)

var (
	fencedYAMLPattern  = regexp.MustCompile("(?s)```ya?ml[ \\t]*\\n(.*?)\\n[ \\t]*```")
	commandsKeyPattern = regexp.MustCompile(`^(\s*)commands:\s*$`)
	// "- help: text", "- help - text" and `- "help" - text`
	commandEntryPattern = regexp.MustCompile(`^(\s*-\s*)("[^"]+"|'[^']+'|[^\s"':]+)(\s*:\s+\S.*|\s+-\s+\S.*)$`)
)

// ExtractBlock returns the first fenced yaml block in text. The block may be
// preceded or followed by prose.
func ExtractBlock(text string) (string, bool) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	match := fencedYAMLPattern.FindStringSubmatch(normalized)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// StripCommandDescriptions rewrites every single-line entry of the commands
// list to its bare trigger. Entries spanning several lines are left alone.
// Applying it to already stripped text returns the text unchanged.
func StripCommandDescriptions(block string) string {
	lines := strings.Split(block, "\n")
	eachCommandLine(lines, func(i int, multiline bool) {
		if multiline {
			return
		}
		lines[i] = commandEntryPattern.ReplaceAllString(lines[i], "$1$2")
	})
	return strings.Join(lines, "\n")
}

// Command is one entry of an agent's command list.
type Command struct {
	Trigger     string
	Description string
}

func parseCommands(block string) []Command {
	lines := strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
	var cmds []Command
	eachCommandLine(lines, func(i int, _ bool) {
		entry := strings.TrimSpace(lines[i])
		entry = strings.TrimSpace(strings.TrimPrefix(entry, "-"))
		if entry == "" {
			return
		}
		cmd := Command{Trigger: entry}
		if m := commandEntryPattern.FindStringSubmatch(lines[i]); m != nil {
			cmd.Trigger = m[2]
			desc := strings.TrimSpace(m[3])
			desc = strings.TrimPrefix(desc, ":")
			desc = strings.TrimPrefix(desc, "-")
			cmd.Description = strings.TrimSpace(desc)
		} else {
			cmd.Trigger = strings.TrimSuffix(cmd.Trigger, ":")
		}
		cmd.Trigger = strings.Trim(cmd.Trigger, `"'`)
		cmds = append(cmds, cmd)
	})
	return cmds
}

// eachCommandLine calls fn for every list item of every commands: block.
// multiline is true when the item continues on deeper-indented lines.
func eachCommandLine(lines []string, fn func(i int, multiline bool)) {
	inCommands := false
	keyIndent, itemIndent := 0, -1
	for i, line := range lines {
		if m := commandsKeyPattern.FindStringSubmatch(line); m != nil {
			inCommands = true
			keyIndent = len(m[1])
			itemIndent = -1
			continue
		}
		if !inCommands {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lead := indentOf(line)
		isItem := strings.HasPrefix(trimmed, "-")
		if lead < keyIndent || (lead == keyIndent && !isItem) {
			inCommands = false
			continue
		}
		if !isItem {
			continue
		}
		if itemIndent < 0 {
			itemIndent = lead
		}
		if lead != itemIndent {
			continue
		}
		fn(i, continues(lines, i, lead))
	}
}

func continues(lines []string, i, lead int) bool {
	for _, next := range lines[i+1:] {
		trimmed := strings.TrimSpace(next)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return indentOf(next) > lead
	}
	return false
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
