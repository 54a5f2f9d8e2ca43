package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jscyril/golang_midi_player/internal/config"
	"github.com/pion/logging"

	// Registers the rtmidi driver for the native backend and device listing.
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"play", "play [files...]", "open the player; files are added to the library first", runPlay},
	{"identify", "identify files...", "print the container each file is sniffed as", runIdentify},
	{"devices", "devices", "list MIDI output devices", runDevices},
	{"writewave", "writewave [-o out.wav] song.mid", "render a song through the SoundFont to a WAV file", runWriteWave},
	{"writemidi", "writemidi [-o out.mid] song.mid", "rewrite a song as a standard MIDI file", runWriteMidi},
	{"scan", "scan [dirs...]", "scan directories into the library", runScan},
	{"stats", "stats song.mid", "print timing details of a song", runStats},
}

// env is what every command shares.
type env struct {
	cfg     *config.Config
	cfgPath string
	loggers logging.LoggerFactory
	log     logging.LeveledLogger
	stdout  io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("midiplay", flag.ContinueOnError)
	configPath := fs.String("config", config.GetConfigPath(), "config file")
	envFile := fs.String("env", ".env", "dotenv file with MIDIPLAYER_* overrides")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.LoadEnvFiles(*envFile); err != nil {
		return err
	}
	cfg, err := config.LoadOrCreate(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", *configPath, err)
	}

	name, rest := "play", fs.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage(fs)
		return fmt.Errorf("unknown command %q", name)
	}

	// The player owns the terminal, so it logs to a file.
	if cmd.name == "play" && cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "midiplay.log")
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	logOut, err := cfg.OpenLog()
	if err != nil {
		return err
	}
	defer logOut.Close()

	loggers, err := cfg.NewLoggerFactory(logOut)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e := &env{
		cfg:     cfg,
		cfgPath: *configPath,
		loggers: loggers,
		log:     loggers.NewLogger("midiplay"),
		stdout:  os.Stdout,
	}
	e.log.Debugf("config %s, backend %s", *configPath, cfg.Backend)
	return cmd.run(ctx, e, rest)
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "usage: midiplay [-config file] [-env file] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-34s %s\n", c.usage, c.summary)
	}
	fmt.Fprintf(out, "\nflags:\n")
	fs.PrintDefaults()
}
