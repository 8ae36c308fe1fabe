package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/1broseidon/compwm/internal/config"
	"github.com/1broseidon/compwm/internal/daemon"
	"github.com/1broseidon/compwm/internal/hotkeys"
	"github.com/1broseidon/compwm/internal/ipc"
	"github.com/1broseidon/compwm/internal/logging"
	"github.com/1broseidon/compwm/internal/palette"
	"github.com/1broseidon/compwm/internal/policy"
	"github.com/1broseidon/compwm/internal/runtimepath"
	"github.com/1broseidon/compwm/internal/scene"
	"github.com/1broseidon/compwm/internal/service"
	"github.com/1broseidon/compwm/internal/wm"
	"github.com/1broseidon/compwm/internal/x11"
)

func runWM(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("path", "", "Config file path (default: ~/.config/compwm/config.yaml)")
	logLevel := fs.String("log-level", "", "Override log_level from the config")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: compwm run [--path PATH] [--log-level LEVEL]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Manage and composite the X display in the foreground.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run takes no arguments")
		fs.Usage()
		return 2
	}

	res, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg := res.Config
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger, level, err := logging.Init(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.Display != "" {
		os.Setenv("DISPLAY", cfg.Display)
	}

	conn, err := x11.NewConnection(logger)
	if err != nil {
		logger.Error("failed to connect to display", "error", err)
		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	disp := wm.NewDispatcher(conn, scene.NewMemoryStage(), wm.Options{
		Logger:        logger,
		Name:          "compwm",
		TransientFade: cfg.TransientFade(),
		MapFade:       cfg.MapFade(),
	})
	loop := daemon.NewLoop(disp, conn.ReceiveEvents, logger)

	pol := policy.NewBasic(disp, policy.Options{
		Logger:            logger,
		FocusFollowsClick: cfg.FocusFollowsClick,
		MotionFlushHz:     cfg.MotionFlushHz,
		Post:              func(fn func()) { loop.Post(fn) },
		PlacementArea:     conn.PlacementArea,
		MonitorArea:       conn.MonitorArea,
		Quit:              quit,
	})
	if err := pol.Attach(); err != nil {
		logger.Error("failed to attach policy", "error", err)
		return 1
	}

	startCtx, cancelStart := context.WithTimeout(ctx, cfg.SelectionTimeout)
	err = disp.Start(startCtx)
	cancelStart()
	if err != nil {
		logger.Error("cannot manage display", "error", err)
		return 1
	}

	st := &wmState{
		ctx:    ctx,
		path:   *path,
		conn:   conn,
		disp:   disp,
		loop:   loop,
		policy: pol,
		keys:   hotkeys.NewBindings(logger, conn),
		level:  level,
		logger: logger,
	}
	for name, fn := range pol.Actions() {
		if err := st.keys.AddAction(name, fn, nil, nil); err != nil {
			logger.Error("failed to register action", "action", name, "error", err)
			return 1
		}
	}
	if err := st.keys.AddAction(actionWindowMenu, st.showMenu, nil, nil); err != nil {
		logger.Error("failed to register action", "action", actionWindowMenu, "error", err)
		return 1
	}
	st.apply(res)
	disp.SetKeyHandler(st.keys)

	socket, err := runtimepath.SocketPath("")
	if err != nil {
		logger.Error("failed to resolve IPC socket", "error", err)
		return 1
	}

	super := service.NewSupervisor("compwm", logger)
	service.Add(super, service.NewFunc(loop.String(), func(ctx context.Context) error {
		err := loop.Serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Without the event loop nothing can be managed.
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	}))
	service.Add(super, ipc.NewServer(socket, &ipcHandler{state: st}, logger))
	service.Add(super, daemon.NewReconciler(daemon.ReconcilerConfig{
		Interval: cfg.ReconcileInterval,
		Logger:   logger,
	}, func(ctx context.Context) error {
		return loop.Do(ctx, disp.Resync)
	}))
	if len(res.Files) > 0 {
		service.Add(super, config.NewWatcher(res.Files, func() {
			go st.reload(ctx)
		}, logger))
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				st.reload(ctx)
			}
		}
	}()

	logger.Info("compwm running", "display", os.Getenv("DISPLAY"), "socket", socket)
	err = super.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return 0
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("window manager stopped", "error", err)
		return 1
	}
	return 0
}

// wmState is what a config reload and the IPC handler reach. Everything
// but ctx, path, loop and logger is owned by the event loop goroutine.
type wmState struct {
	ctx    context.Context
	path   string
	conn   *x11.Connection
	disp   *wm.Dispatcher
	loop   *daemon.Loop
	policy *policy.Basic
	keys   *hotkeys.Bindings
	level  *slog.LevelVar
	logger *slog.Logger

	files    []string
	commands []string
	menu     palette.Backend
	menuName string
	menuOpen bool
}

// reload re-reads the config and applies it on the event loop. Failures
// keep the running config.
func (s *wmState) reload(ctx context.Context) error {
	res, err := loadConfig(s.path)
	if err != nil {
		s.logger.Warn("config reload failed", "error", err)
		return err
	}
	return s.loop.Do(ctx, func() error {
		s.apply(res)
		return nil
	})
}

// apply installs a loaded config. Must run on the event loop goroutine, or
// before it starts.
func (s *wmState) apply(res *config.LoadResult) {
	cfg := res.Config
	if lvl, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		s.level.Set(lvl)
	}
	s.policy.SetFocusFollowsClick(cfg.FocusFollowsClick)
	s.policy.SetMotionFlushHz(cfg.MotionFlushHz)
	s.setMenu(cfg.Menu)

	for _, name := range s.commands {
		if err := s.keys.RemoveAction(name); err != nil {
			s.logger.Warn("failed to drop command", "command", name, "error", err)
		}
	}
	s.commands = s.commands[:0]
	keys := make(map[string][]string, len(cfg.Bindings)+len(cfg.Commands))
	for action, list := range cfg.Bindings {
		keys[action] = list
	}
	for _, name := range cfg.CommandNames() {
		cmd := cfg.Commands[name]
		if err := s.keys.AddAction(name, func() { spawn(s.logger, name, cmd.Run) }, nil, nil); err != nil {
			s.logger.Warn("failed to register command", "command", name, "error", err)
			continue
		}
		s.commands = append(s.commands, name)
		keys[name] = cmd.Keys
	}
	s.keys.SetIgnoredModifiers(s.conn.LockModifiers())
	if err := s.keys.Load(keys, s.conn.KeysymByName); err != nil {
		s.logger.Warn("some key bindings were not installed", "error", err)
	}
	s.files = res.Files
	s.logger.Info("configuration applied", "bindings", len(s.keys.List()), "files", res.Files)
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}
