// Package hostinfo reports uname-style details about the machine running
// the bot, for the admin-only backend_info command.
package hostinfo

// Info mirrors the fields of uname(2).
type Info struct {
	System  string
	Node    string
	Release string
	Version string
	Machine string
}
