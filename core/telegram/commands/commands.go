package commands

// Command describes a slash command for the menu and for lookups.
type Command struct {
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
