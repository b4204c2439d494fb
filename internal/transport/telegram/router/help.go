package router

import "strings"

// HelpLines renders one "usage - description" line per registered command,
// in registration order.
func (m *CommandManager) HelpLines() []string {
	cmds := m.Commands()
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := usage
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + d
		}
		out = append(out, line)
	}
	return out
}
