package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/onsah/flux/internal/config"
	"github.com/onsah/flux/internal/modules"
	"github.com/onsah/flux/internal/pipeline"
	"github.com/onsah/flux/internal/vm"
)

const prompt = "\033[32m>\033[0m "

func main() {
	disasm := flag.Bool("disasm", false, "dump the compiled chunk before running")
	trace := flag.Bool("trace", false, "trace executed instructions to stderr")
	libDir := flag.String("lib", "", "override the bundled stdlib directory")
	flag.Parse()

	cfg, err := config.LoadProject(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *libDir == "" {
		*libDir = cfg.Lib
	}
	if *libDir == "" {
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Join(filepath.Dir(exe), "lib")
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				*libDir = dir
			}
		}
	}
	loader := modules.NewLoader()
	loader.LibDir = *libDir

	opts := runOptions{
		disasm: *disasm || cfg.Disasm,
		trace:  *trace || cfg.Trace,
		loader: loader,
	}

	if flag.NArg() < 1 {
		if err := repl(opts, cfg.HistoryPath()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := runFile(flag.Arg(0), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOptions struct {
	disasm bool
	trace  bool
	loader *modules.Loader
}

func (o runOptions) vmOptions() []vm.Option {
	if o.trace {
		return []vm.Option{vm.WithTrace(os.Stderr)}
	}
	return nil
}

func runFile(path string, opts runOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	chunk, err := pipeline.Compile(string(data), path, filepath.Dir(path), opts.loader)
	if err != nil {
		return err
	}
	if opts.disasm {
		fmt.Fprint(os.Stderr, vm.Disassemble(chunk, config.TrimSourceExt(filepath.Base(path))))
	}
	machine := vm.New(opts.vmOptions()...)
	value, err := machine.Run(chunk)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

// repl reads one line at a time, keeping the VM's global map between lines.
// Errors abort the line, never the session.
func repl(opts runOptions, historyFile string) error {
	machine := vm.New(opts.vmOptions()...)

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return replPlain(machine, opts, os.Stdin)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	fmt.Printf("flux %s\n", config.Version)
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		evalLine(machine, line, opts)
	}
}

// replPlain is the piped-stdin mode: no prompt, no history.
func replPlain(machine *vm.VM, opts runOptions, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		evalLine(machine, line, opts)
	}
	return scanner.Err()
}

func evalLine(machine *vm.VM, line string, opts runOptions) {
	globals := make([]string, 0, len(machine.Globals()))
	for name := range machine.Globals() {
		globals = append(globals, name)
	}
	chunk, err := pipeline.CompileInteractive(line, opts.loader, globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if opts.disasm {
		fmt.Fprint(os.Stderr, vm.Disassemble(chunk, "repl"))
	}
	if _, err := machine.Run(chunk); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
