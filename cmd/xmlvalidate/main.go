package main

import (
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

// Exit codes besides the batch result
const exitUsage = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	app := kingpin.New("xmlvalidate", "Validate XML files against the XML schemas they declare.")
	app.UsageWriter(stdout).ErrorWriter(stderr)

	terminated := -1
	app.Terminate(func(code int) { terminated = code })

	var (
		logConfig       LoggerConfig
		validateCommand ValidateCommand
	)
	// Register logger first so its PreAction runs before the command
	logConfig.Register(app, stderr)
	validateCommand.Register(app, &logConfig, stdout)

	_, err := app.Parse(args)
	if terminated >= 0 {
		return terminated
	}
	if err != nil {
		app.Errorf("%s", err)
		return exitUsage
	}
	return validateCommand.exitCode
}
