package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/compwm/internal/config"
	"github.com/1broseidon/compwm/internal/ipc"
	"github.com/1broseidon/compwm/internal/x11"
)

func main() {
	// A .env in the working directory may set DISPLAY or COMPWM_CONFIG.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runWM(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "bindings":
		os.Exit(runBindings(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "send":
		os.Exit(runSend(os.Args[2:]))
	case "activate":
		os.Exit(runStandalone("activate", x11.ActivateStandalone, os.Args[2:]))
	case "fullscreen":
		os.Exit(runStandalone("fullscreen", x11.ToggleFullscreenStandalone, os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: compwm <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Run the window manager (foreground)")
	fmt.Fprintln(w, "  status              Show window manager status")
	fmt.Fprintln(w, "  windows             List managed windows")
	fmt.Fprintln(w, "  bindings            List key bindings")
	fmt.Fprintln(w, "  reload              Reload configuration")
	fmt.Fprintln(w, "  send                Send a custom message")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  activate            Ask the window manager to focus a window")
	fmt.Fprintln(w, "  fullscreen          Ask the window manager to toggle fullscreen")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config sources      Show where each setting came from")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'compwm <command> --help' for command-specific options.")
}

// clientFlags parses the flags shared by the IPC client commands. It
// returns the exit code to use when parsing stops the command.
func clientFlags(fs *flag.FlagSet, args []string, usage string, maxArgs int) (string, int, bool) {
	fs.SetOutput(os.Stderr)
	display := fs.String("display", "", "X display of the window manager (default: $DISPLAY)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: "+usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return "", 0, false
		}
		return "", 2, false
	}
	if fs.NArg() > maxArgs {
		if maxArgs == 0 {
			fmt.Fprintf(os.Stderr, "%s takes no arguments\n", fs.Name())
		} else {
			fmt.Fprintf(os.Stderr, "%s takes at most %d arguments\n", fs.Name(), maxArgs)
		}
		fs.Usage()
		return "", 2, false
	}
	return *display, 0, true
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	display, code, ok := clientFlags(fs, args, "compwm status [--display DISPLAY]", 0)
	if !ok {
		return code
	}

	status, err := ipc.NewClient(display).GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("daemon_running: %v\n", status.DaemonRunning)
	fmt.Printf("name:           %s\n", status.Name)
	fmt.Printf("display:        %s\n", status.Display)
	fmt.Printf("windows:        %d\n", status.Windows)
	fmt.Printf("mapped:         %d\n", status.Mapped)
	fmt.Printf("active:         0x%x\n", status.Active)
	fmt.Printf("consumers:      %d\n", status.Consumers)
	fmt.Printf("events:         %d\n", status.Events)
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	for _, f := range status.ConfigFiles {
		fmt.Printf("config_file:    %s\n", f)
	}
	return 0
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the full snapshot as JSON")
	display, code, ok := clientFlags(fs, args, "compwm windows [--display DISPLAY] [--json]", 0)
	if !ok {
		return code
	}

	snap, err := ipc.NewClient(display).ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	for _, w := range snap.Windows {
		flags := ""
		if w.Mapped {
			flags += "m"
		}
		if w.Focused {
			flags += "f"
		}
		if w.Override {
			flags += "o"
		}
		if w.Fullscreen {
			flags += "F"
		}
		r := w.Client
		fmt.Printf("0x%08x  %-4s %dx%d+%d+%d\n", w.ID, flags, r.Width, r.Height, r.X, r.Y)
	}
	return 0
}

func runBindings(args []string) int {
	fs := flag.NewFlagSet("bindings", flag.ContinueOnError)
	display, code, ok := clientFlags(fs, args, "compwm bindings [--display DISPLAY]", 0)
	if !ok {
		return code
	}

	data, err := ipc.NewClient(display).ListBindings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	bound := make(map[string]bool, len(data.Bindings))
	for _, b := range data.Bindings {
		fmt.Printf("%-20s %s\n", b.Action, b.Keys)
		bound[b.Action] = true
	}
	for _, name := range data.Actions {
		if !bound[name] {
			fmt.Printf("%-20s (unbound)\n", name)
		}
	}
	return 0
}

func runReload(args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	display, code, ok := clientFlags(fs, args, "compwm reload [--display DISPLAY]", 0)
	if !ok {
		return code
	}

	if err := ipc.NewClient(display).Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("reload: ok")
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	window := fs.Uint("window", 0, "Target window (default: the window manager)")
	display, code, ok := clientFlags(fs, args, "compwm send [--display DISPLAY] [--window ID] <type> [param...]", 5)
	if !ok {
		return code
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "send requires a message type")
		fs.Usage()
		return 2
	}

	p := ipc.SendMessagePayload{Window: uint32(*window), Type: fs.Arg(0)}
	for i, arg := range fs.Args()[1:] {
		v, err := strconv.ParseInt(arg, 0, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid parameter %q: %v\n", arg, err)
			return 2
		}
		p.Params[i] = int32(v)
	}
	if err := ipc.NewClient(display).SendMessage(p); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// runStandalone runs an EWMH request against a running window manager
// without going through IPC, so it works with any compliant manager.
func runStandalone(name string, fn func(string) (xproto.Window, error), args []string) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: compwm %s <window-id|title>\n", name)
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	win, err := fn(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: 0x%x\n", name, win)
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  compwm config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  compwm config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  compwm config sources [--path PATH]")
		return 2
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("path", "", "Config file path (default: ~/.config/compwm/config.yaml)")
	printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	switch args[0] {
	case "validate":
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "sources":
		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		keys := make([]string, 0, len(res.Sources))
		for k := range res.Sources {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, formatSource(res.Sources[k]))
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		return "default"
	default:
		return string(src.Kind)
	}
}
