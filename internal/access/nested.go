package access

import (
	"fmt"
	"strings"
)

// ShellQuote wraps s in single quotes, escaping embedded single quotes
// with the '\'' idiom. Building nested commands through this one encoder
// keeps quoting bugs out of the relay path.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// NestedCommand builds the command the gateway runs to execute `command`
// on the target device. The gateway needs sshpass because lab boards
// authenticate by password, and host key checking is disabled because
// reflashed boards change keys constantly.
func NestedCommand(target *Target, command string) string {
	var b strings.Builder

	if target.Password != "" {
		fmt.Fprintf(&b, "sshpass -p %s ", ShellQuote(target.Password))
	}
	b.WriteString("ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null")
	if target.Port != 0 && target.Port != 22 {
		fmt.Fprintf(&b, " -p %d", target.Port)
	}
	fmt.Fprintf(&b, " %s@%s %s", target.Principal, target.Address, ShellQuote(command))

	return b.String()
}
