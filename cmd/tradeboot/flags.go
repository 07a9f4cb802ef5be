package main

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	NonInteractive bool
	Debug          bool
}

// CheckFlags holds flags for the check command.
type CheckFlags struct {
	Debug bool
}

// DepsFlags holds flags for the deps command.
type DepsFlags struct {
	Debug bool
}
