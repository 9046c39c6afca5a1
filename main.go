// main.go - Command line front end for the Intuition ZK Engine

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var bannerColourCodes = regexp.MustCompile(`\033\[[0-9;]*m`)

func boilerPlate(colour bool) {
	banner := "\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m\n\033[38;2;255;50;147m▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀\033[0m\n\033[38;2;255;80;147m▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███\033[0m\n\033[38;2;255;110;147m░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄\033[0m\n\033[38;2;255;140;147m░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒\033[0m\n\033[38;2;255;170;147m░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░\033[0m\n\033[38;2;255;200;147m ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░\033[0m\n\033[38;2;255;230;147m ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░\033[0m\n\033[38;2;255;255;147m ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░\033[0m"
	if !colour {
		banner = bannerColourCodes.ReplaceAllString(banner, "")
	}
	fmt.Println(banner)
	fmt.Println("\nA RISC-V zero-knowledge execution engine.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionEngine")
	fmt.Println("Buy me a coffee: https://ko-fi.com/intuition/tip")
	fmt.Println("License: GPLv3 or later")
}

// ------------------------------------------------------------------------------
// Flags
// ------------------------------------------------------------------------------

// hexInputs collects repeated -input values.
type hexInputs [][]byte

func (h *hexInputs) String() string {
	parts := make([]string, len(*h))
	for i, b := range *h {
		parts[i] = hexutil.Encode(b)
	}
	return strings.Join(parts, ",")
}

func (h *hexInputs) Set(s string) error {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return fmt.Errorf("input %q: %w", s, err)
	}
	*h = append(*h, b)
	return nil
}

type luaBinding struct {
	code SyscallCode
	file string
}

// luaBindings collects repeated -lua CODE=FILE values.
type luaBindings []luaBinding

func (l *luaBindings) String() string {
	parts := make([]string, len(*l))
	for i, b := range *l {
		parts[i] = fmt.Sprintf("0x%x=%s", uint32(b.code), b.file)
	}
	return strings.Join(parts, ",")
}

func (l *luaBindings) Set(s string) error {
	codeStr, file, ok := strings.Cut(s, "=")
	if !ok || file == "" {
		return fmt.Errorf("lua binding %q: want CODE=FILE", s)
	}
	code, err := strconv.ParseUint(codeStr, 0, 32)
	if err != nil {
		return fmt.Errorf("lua binding %q: %w", s, err)
	}
	if !SyscallCode(code).IsScripted() {
		return fmt.Errorf("lua binding %q: code outside 0x%x-0x%x", s,
			uint32(SYSCALL_SCRIPTED_FIRST), uint32(SYSCALL_SCRIPTED_LAST))
	}
	*l = append(*l, luaBinding{code: SyscallCode(code), file: file})
	return nil
}

type cliOptions struct {
	maxCycles  uint64
	trace      bool
	verbosity  int
	inputs     hexInputs
	lua        luaBindings
	checkpoint string
	pipeline   int
	parallel   int
	disasm     bool
	regs       bool
	version    bool
	programs   []string
}

func parseFlags(args []string) (*cliOptions, error) {
	opts := &cliOptions{}
	defaults := DefaultExecutorConfig()

	flagSet := flag.NewFlagSet("intuition_zk", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.Uint64Var(&opts.maxCycles, "max-cycles", defaults.MaxCycles, "Cycle limit per program (0 = unlimited)")
	flagSet.BoolVar(&opts.trace, "trace", false, "Record a CPU event for every instruction")
	flagSet.IntVar(&opts.verbosity, "verbosity", 3, "Log level 0-5 (crit, error, warn, info, debug, trace)")
	flagSet.Var(&opts.inputs, "input", "Hex bytes queued as a hint (repeatable)")
	flagSet.Var(&opts.lua, "lua", "Register a Lua precompile, CODE=FILE (repeatable)")
	flagSet.StringVar(&opts.checkpoint, "checkpoint", "", "Write the final VM state to this file")
	flagSet.IntVar(&opts.pipeline, "pipeline", defaults.PipelineCapacity, "Prefetch pipeline capacity, power of two (0 = off)")
	flagSet.IntVar(&opts.parallel, "parallel", 1, "Programs to run at once")
	flagSet.BoolVar(&opts.disasm, "disasm", false, "Disassemble instead of running")
	flagSet.BoolVar(&opts.regs, "regs", false, "Print the final register file")
	flagSet.BoolVar(&opts.version, "version", false, "Print version and compiled features")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./intuition_zk [flags] program.elf [program.elf ...]")
		flagSet.PrintDefaults()
	}

	// Parse prints usage itself on -h and on bad flags.
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	opts.programs = flagSet.Args()

	if opts.verbosity < 0 || opts.verbosity > 5 {
		return nil, fmt.Errorf("verbosity %d out of range 0-5", opts.verbosity)
	}
	if opts.parallel < 1 {
		return nil, fmt.Errorf("parallel must be at least 1")
	}
	if opts.pipeline < 0 {
		return nil, fmt.Errorf("pipeline capacity must not be negative")
	}
	if !opts.version && len(opts.programs) == 0 {
		return nil, fmt.Errorf("no program given")
	}
	return opts, nil
}

// setupLogging installs a terminal handler on stderr, coloured only on a TTY.
func setupLogging(verbosity int) {
	colour := term.IsTerminal(int(os.Stderr.Fd()))
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), colour)
	log.SetDefault(log.NewLogger(handler))
}

// buildRegistry returns the default registry plus any Lua precompiles.
func buildRegistry(bindings luaBindings) (*SyscallRegistry, error) {
	registry := DefaultSyscallRegistry()
	for _, b := range bindings {
		script, err := LoadScriptedSyscall(b.file)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterScripted(b.code, script); err != nil {
			return nil, err
		}
		log.Debug("Registered scripted precompile", "code", b.code, "file", b.file, "extra_cycles", script.NumExtraCycles())
	}
	return registry, nil
}

// ------------------------------------------------------------------------------
// Running
// ------------------------------------------------------------------------------

type runResult struct {
	path   string
	stdout bytes.Buffer
	exec   *Executor
	err    error
}

func checkpointPath(base string, index, total int) string {
	if total == 1 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, index)
}

func runProgram(path string, index int, opts *cliOptions, registry *SyscallRegistry) *runResult {
	res := &runResult{path: path}
	program, err := LoadProgramFile(path)
	if err != nil {
		res.err = err
		return res
	}

	config := DefaultExecutorConfig()
	config.MaxCycles = opts.maxCycles
	config.Trace = opts.trace
	config.PipelineCapacity = opts.pipeline
	config.Stdout = &res.stdout
	config.Stderr = os.Stderr
	config.Input = opts.inputs
	config.Syscalls = registry
	config.Logger = log.Root().New("program", path)

	exec, err := NewExecutor(program, config)
	if err != nil {
		res.err = err
		return res
	}
	res.exec = exec
	res.err = exec.Run()

	if opts.checkpoint != "" {
		cpPath := checkpointPath(opts.checkpoint, index, len(opts.programs))
		if err := SaveCheckpointToFile(TakeCheckpoint(exec.Context()), cpPath); err != nil && res.err == nil {
			res.err = fmt.Errorf("saving checkpoint: %w", err)
		}
	}
	return res
}

func printSummary(res *runResult, regs bool) {
	os.Stdout.Write(res.stdout.Bytes())
	if res.exec == nil {
		return
	}
	stats := res.exec.Stats()
	ctx := res.exec.Context()
	digest := ctx.Events().Digest()

	fmt.Printf("%s: exit %d after %d cycles (%d instructions)\n",
		res.path, ctx.ExitCode(), stats.Cycles, stats.Instructions)
	fmt.Printf("  prefetch: %d hits, %d misses\n", stats.PrefetchHits, stats.PrefetchMisses)
	fmt.Printf("  branches: %d retired, %d mispredicted (%.1f%%)\n",
		stats.Branches, stats.Mispredictions, 100*stats.MispredictionRate())
	fmt.Printf("  syscalls: %d, events: %d, digest %s\n",
		stats.Syscalls, ctx.Events().Len(), hexutil.Encode(digest[:]))
	if pv := ctx.PublicValues(); len(pv) > 0 {
		fmt.Printf("  public values: %s\n", hexutil.Encode(pv))
	}
	if regs {
		printRegisters(os.Stdout, NewDebugRV(res.exec))
	}
}

// printRegisters prints status registers one per line, then the general
// registers four to a row.
func printRegisters(w io.Writer, vm DebuggableVM) {
	col := 0
	for _, r := range vm.GetRegisters() {
		if r.Group != "general" {
			fmt.Fprintf(w, "  %-5s 0x%08x\n", r.Name, r.Value)
			continue
		}
		fmt.Fprintf(w, "  %-5s 0x%08x", r.Name, r.Value)
		if col++; col%4 == 0 {
			fmt.Fprintln(w)
		}
	}
	if col%4 != 0 {
		fmt.Fprintln(w)
	}
}

func disassembleFile(path string) error {
	program, err := LoadProgramFile(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: entry 0x%08x, %d instructions\n", path, program.PCStart(), program.Len())
	for _, line := range DisassembleProgram(program, program.PCBase(), program.Len()) {
		marker := " "
		if line.Address == uint64(program.PCStart()) {
			marker = ">"
		}
		fmt.Printf("%s %08x  %s  %s\n", marker, line.Address, line.HexBytes, line.Mnemonic)
	}
	return nil
}

func main() {
	boilerPlate(term.IsTerminal(int(os.Stdout.Fd())))

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if opts.version {
		printFeatures()
		return
	}
	setupLogging(opts.verbosity)

	if opts.disasm {
		for _, path := range opts.programs {
			if err := disassembleFile(path); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
		}
		return
	}

	registry, err := buildRegistry(opts.lua)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Each program gets its own executor; only the registry is shared.
	results := make([]*runResult, len(opts.programs))
	var g errgroup.Group
	g.SetLimit(opts.parallel)
	for i, path := range opts.programs {
		i, path := i, path
		g.Go(func() error {
			results[i] = runProgram(path, i, opts, registry)
			return nil
		})
	}
	g.Wait()

	exitCode := 0
	for _, res := range results {
		printSummary(res, opts.regs)
		if res.err != nil {
			fmt.Printf("Error: %s: %v\n", res.path, res.err)
			exitCode = 1
			continue
		}
		if code := res.exec.ExitCode(); code != 0 && exitCode == 0 {
			exitCode = int(code & 0xFF)
		}
	}
	os.Exit(exitCode)
}
