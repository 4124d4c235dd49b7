package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/term"
	"golang.org/x/text/language"

	"github.com/agentflare-ai/go-xmlvalidate"
	"github.com/agentflare-ai/go-xmlvalidate/config"
	"github.com/agentflare-ai/go-xmlvalidate/discovery"
	"github.com/agentflare-ai/go-xmlvalidate/report"
	"github.com/agentflare-ai/go-xmlvalidate/urn"
	"github.com/agentflare-ai/go-xmlvalidate/xsd"
)

// ValidateCommand validates XML files against the schemas they declare
type ValidateCommand struct {
	paths          []string
	configFile     string
	configSet      bool
	projectRoot    string
	requireSchema  bool
	requireSet     bool
	concurrency    int
	concurrencySet bool
	noColor        bool
	githubActions  bool
	githubSet      bool

	logConfig *LoggerConfig
	fs        afero.Fs
	stdout    io.Writer
	exitCode  int
}

// Register the xml:validate command and its flags with the kingpin application
func (c *ValidateCommand) Register(app *kingpin.Application, logConfig *LoggerConfig, stdout io.Writer) {
	c.logConfig = logConfig
	c.stdout = stdout
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}

	cmd := app.Command("xml:validate", "Validate XML files against the schema named by their xsi:noNamespaceSchemaLocation.").Action(c.validate)
	cmd.Arg("paths", "Files and directories to validate.").Required().StringsVar(&c.paths)
	cmd.Flag("config.file", "Configuration file. A missing default file is ignored.").
		Default(config.DefaultFile).IsSetByUser(&c.configSet).StringVar(&c.configFile)
	cmd.Flag("project-root", "Directory schema URNs and reported paths are relative to. Defaults to the working directory.").
		Envar("XMLVALIDATE_PROJECT_ROOT").StringVar(&c.projectRoot)
	cmd.Flag("require-schema", "Treat files without a schema declaration as invalid.").
		IsSetByUser(&c.requireSet).BoolVar(&c.requireSchema)
	cmd.Flag("concurrency", "Number of files validated in parallel.").
		IsSetByUser(&c.concurrencySet).IntVar(&c.concurrency)
	cmd.Flag("no-color", "Disable colored output.").BoolVar(&c.noColor)
	cmd.Flag("github-actions", "Write GitHub Actions annotations instead of console output. Defaults to on when GITHUB_ACTIONS is set.").
		IsSetByUser(&c.githubSet).BoolVar(&c.githubActions)
}

func (c *ValidateCommand) validate(*kingpin.ParseContext) error {
	logger := c.logConfig.Logger()

	cwd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "working directory")
	}
	cfg, err := c.loadConfig(cwd)
	if err != nil {
		return err
	}
	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "configuration loaded", "project_root", cfg.ProjectRoot, "concurrency", cfg.Concurrency, "require_schema", cfg.RequireSchema)

	locator := urn.NewLocator(c.fs, cfg.ProjectRoot, cfg.Components, logger)
	cache := xsd.NewCache(xsd.NewLoader(c.fs, locator, logger), cfg.SchemaCacheSize, logger)
	pipeline := xmlvalidate.NewPipeline(
		xmlvalidate.TolerantParser{MaxSize: maxSize},
		locator,
		xmlvalidate.NewXSDValidator(cache),
		xmlvalidate.WithRequireSchema(cfg.RequireSchema),
		xmlvalidate.WithLogger(logger),
	)
	finder := discovery.NewFinder(c.fs, cfg.ProjectRoot, cfg.Exclude, logger)
	level.Debug(logger).Log("msg", "discovery configured", "root", locator.Root(), "exclude", strings.Join(finder.Exclusions(), ","))
	reporter := c.reporter()
	runner := xmlvalidate.NewRunner(pipeline, reporter, cfg.Concurrency, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reporter.Title()
	var summary xmlvalidate.BatchSummary
	for _, arg := range c.paths {
		path := absolute(cwd, arg)
		target, err := finder.Find(path)
		if target.Excluded {
			reporter.Excluded(filepath.Base(path))
			continue
		}

		var requests []xmlvalidate.Request
		if err != nil {
			requests = append(requests, xmlvalidate.Request{
				Name: finder.Name(path),
				Load: func() ([]byte, error) { return nil, err },
			})
		}
		for _, file := range target.Files {
			requests = append(requests, xmlvalidate.Request{
				Name: file.Name,
				Load: func() ([]byte, error) { return finder.Read(file) },
			})
		}
		summary = summary.Add(runner.Process(ctx, requests))
	}
	reporter.Summary(summary)

	c.exitCode = summary.ExitCode()
	return nil
}

// loadConfig merges the configuration file with the flags set on the
// command line and makes the project root absolute
func (c *ValidateCommand) loadConfig(cwd string) (config.Config, error) {
	cfg, err := config.Load(c.fs, absolute(cwd, c.configFile), c.configSet)
	if err != nil {
		return cfg, err
	}
	if c.projectRoot != "" {
		cfg.ProjectRoot = c.projectRoot
	}
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = cwd
	}
	cfg.ProjectRoot = absolute(cwd, cfg.ProjectRoot)
	if c.requireSet {
		cfg.RequireSchema = c.requireSchema
	}
	if c.concurrencySet {
		cfg.Concurrency = c.concurrency
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	if info, err := c.fs.Stat(cfg.ProjectRoot); err != nil || !info.IsDir() {
		return cfg, errors.Errorf("project root %s is not a directory", cfg.ProjectRoot)
	}
	return cfg, nil
}

// reporter picks the output backend. Colors and the terminal width are only
// used when stdout is a terminal.
func (c *ValidateCommand) reporter() report.Reporter {
	printer := report.NewPrinter(language.English)
	if c.annotations() {
		return report.NewAnnotations(c.stdout, printer)
	}

	width, colored := report.DefaultWidth, false
	if f, ok := c.stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
		colored = !c.noColor && os.Getenv("NO_COLOR") == ""
	}
	return report.NewConsole(c.stdout, printer, width, colored)
}

// annotations reports whether GitHub annotations are wanted. The flag wins;
// otherwise any non-empty GITHUB_ACTIONS turns them on.
func (c *ValidateCommand) annotations() bool {
	if c.githubSet {
		return c.githubActions
	}
	return os.Getenv("GITHUB_ACTIONS") != ""
}

func absolute(cwd, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(cwd, path)
}
