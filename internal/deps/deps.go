package deps

// Status reports whether an external binary is usable. Command holds the
// resolved path when Available, otherwise the name that was looked up.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}
