// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

// Command kena is a POSIX-compatible shell interpreter: it runs a script
// file, a -c command string, standard input, or an interactive REPL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/kena-sh/kena/interp"
	"github.com/kena-sh/kena/syntax"
)

var (
	app = kingpin.New("kena", "a POSIX-compatible Shell Command Language interpreter")

	optErrExit     = app.Flag("errexit", "exit immediately if a pipeline returns non-zero").Short('e').Bool()
	optNoUnset     = app.Flag("nounset", "treat unset variables as an error on expansion").Short('u').Bool()
	optXTrace      = app.Flag("xtrace", "print commands and their expanded arguments as they run").Short('x').Bool()
	optNoGlob      = app.Flag("noglob", "disable pathname expansion").Short('f').Bool()
	optNoExec      = app.Flag("noexec", "read commands but do not execute them").Short('n').Bool()
	optAllExport   = app.Flag("allexport", "export all variables assigned to").Short('a').Bool()
	optVerbose     = app.Flag("verbose", "echo input lines as they are read").Short('v').Bool()
	optNoClobber   = app.Flag("noclobber", "disallow > redirection from truncating existing files").Short('C').Bool()
	optMonitor     = app.Flag("monitor", "enable job-control messages (no-op beyond jobs/wait/kill)").Short('m').Bool()
	optInteractive = app.Flag("interactive", "force interactive mode").Short('i').Bool()
	optSetOpts     = app.Flag("o", "enable a shell option by name, as with set -o").Short('o').Strings()

	optCommand = app.Flag("command", "a command to execute, in place of a script file").Short('c').String()
	optStdin   = app.Flag("stdin", "read commands from standard input").Short('s').Bool()

	optRCFile = app.Flag("rcfile", "file to source at interactive startup, instead of $ENV").String()
	optNoRC   = app.Flag("norc", "do not source $ENV (or --rcfile) at interactive startup").Bool()
	optPOSIX  = app.Flag("posix", "restrict the parser and runtime to POSIX-only syntax").Bool()

	posArgs = app.Arg("args", "script file and arguments, or NAME and arguments after -c").Strings()
)

func main() {
	os.Exit(main1())
}

func main1() int {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	err := runAll()
	var es interp.ExitStatus
	if errors.As(err, &es) {
		return int(es)
	}
	if err != nil {
		printError(err)
		return 1
	}
	return 0
}

// printError reports a top-level error the way an interactive shell reports
// a syntax or startup error: in red when stderr is a terminal.
func printError(err error) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

func runAll() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parserOpts := []syntax.ParserOption{syntax.KeepComments(true)}
	if *optPOSIX {
		parserOpts = append(parserOpts, syntax.Variant(syntax.LangPOSIX))
	}

	runnerOpts, args := shellOptions()

	interactive := *optInteractive || (*optCommand == "" && !*optStdin && len(args) == 0 && term.IsTerminal(int(os.Stdin.Fd())))
	runnerOpts = append(runnerOpts, interp.Interactive(interactive), interp.StdIO(os.Stdin, os.Stdout, os.Stderr))

	r, err := interp.New(runnerOpts...)
	if err != nil {
		return err
	}
	parser := syntax.NewParser(parserOpts...)

	if *optCommand != "" {
		name := "kena"
		if len(args) > 0 {
			name, args = args[0], args[1:]
		}
		if err := interp.Params(append([]string{"--"}, args...)...)(r); err != nil {
			return err
		}
		reader := verboseReader(strings.NewReader(*optCommand), *optVerbose)
		return run(ctx, parser, r, reader, name)
	}

	if interactive {
		if !*optNoRC {
			if err := sourceRCFile(ctx, parser, r); err != nil {
				printError(err)
			}
		}
		return runInteractive(ctx, parser, r)
	}

	if *optStdin || len(args) == 0 {
		reader := verboseReader(os.Stdin, *optVerbose)
		return run(ctx, parser, r, reader, "")
	}

	path, scriptArgs := args[0], args[1:]
	if err := interp.Params(append([]string{"--"}, scriptArgs...)...)(r); err != nil {
		return err
	}
	return runPath(ctx, parser, r, path)
}

// shellOptions translates the boolean and -o flags into the "set"-style
// argument list [interp.Params] expects, and returns the positional
// arguments left over (script/NAME plus its own arguments).
func shellOptions() ([]interp.RunnerOption, []string) {
	type flagOpt struct {
		enabled *bool
		letter  string
	}
	flags := []flagOpt{
		{optErrExit, "e"},
		{optNoUnset, "u"},
		{optXTrace, "x"},
		{optNoGlob, "f"},
		{optNoExec, "n"},
		{optAllExport, "a"},
		{optNoClobber, "C"},
	}
	var set []string
	for _, f := range flags {
		if *f.enabled {
			set = append(set, "-"+f.letter)
		}
	}
	for _, name := range *optSetOpts {
		set = append(set, "-o", name)
	}
	var opts []interp.RunnerOption
	if len(set) > 0 {
		set = append(set, "--")
		opts = append(opts, interp.Params(set...))
	}
	return opts, *posArgs
}
