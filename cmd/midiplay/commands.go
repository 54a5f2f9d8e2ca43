package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jscyril/golang_midi_player/internal/audio"
	"github.com/jscyril/golang_midi_player/internal/backend"
	"github.com/jscyril/golang_midi_player/internal/gain"
	"github.com/jscyril/golang_midi_player/internal/library"
	"github.com/jscyril/golang_midi_player/internal/midifile"
	"github.com/jscyril/golang_midi_player/internal/render"
	"github.com/jscyril/golang_midi_player/internal/stream"
	"github.com/jscyril/golang_midi_player/internal/ui"
	"github.com/jscyril/golang_midi_player/pkg/events"
)

func (e *env) libraryPath() string {
	return filepath.Join(e.cfg.DataDir, "library.json")
}

func (e *env) loadLibrary() (*library.Library, error) {
	lib, err := library.LoadLibrary(e.libraryPath(), e.cfg.ScanWorkers)
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return lib, nil
}

func runPlay(ctx context.Context, e *env, args []string) error {
	lib, err := e.loadLibrary()
	if err != nil {
		return err
	}
	e.log.Infof("loaded %d songs from library", lib.TotalSongs)

	if lib.TotalSongs == 0 && len(e.cfg.MusicDirectories) > 0 {
		result, err := lib.Scan(ctx, e.cfg.MusicDirectories)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		e.logScan(result)
	}
	for _, path := range args {
		if _, err := lib.AddFile(path); err != nil {
			return err
		}
	}
	defer func() {
		if err := lib.Save(e.libraryPath()); err != nil {
			e.log.Warnf("save library: %v", err)
		}
	}()

	g := gain.NewState()
	g.SetMasterVolume(e.cfg.DefaultVolume)

	backendCfg := e.cfg.BackendConfig()
	var mixer *stream.SpeakerMixer
	engine := audio.NewAudioEngine(audio.Options{
		Backend: func() (backend.Backend, error) {
			return backend.New(backendCfg, e.loggers)
		},
		NewMixer: func(onEnd func()) stream.Mixer {
			mixer = stream.NewSpeakerMixer(e.cfg.SampleRate, 0, onEnd)
			return mixer
		},
		Gain:    g,
		Looping: e.cfg.Loop,
		Logger:  e.loggers,
	})
	defer mixer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	engine.Start(ctx)

	bus := events.NewEventBus()
	defer bus.Close()
	go bus.Forward(engine.Events())

	if err := ui.Run(ctx, engine, lib, bus.SubscribeAll(), e.cfg.KeyBindings); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return engine.Stop()
}

func (e *env) logScan(result library.ScanResult) {
	e.log.Infof("scan added %d songs", result.Added)
	for _, err := range result.Errors {
		e.log.Warnf("%v", err)
	}
}

func runIdentify(_ context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("identify: no files given")
	}
	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, path := range args {
		kind, err := identify(path)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", path, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", path, kind)
	}
	return w.Flush()
}

func identify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, midifile.HeaderSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	kind := midifile.Identify(head[:n])
	if !kind.IsMidi() && audio.IsDigital(path) {
		return "sampled audio", nil
	}
	return kind.String(), nil
}

func runDevices(_ context.Context, e *env, _ []string) error {
	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBACKEND\tTECHNOLOGY\tNAME")
	for _, d := range backend.Devices() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.Backend, d.Technology, d.Name)
	}
	return w.Flush()
}

// outputFlag parses "-o path" and one input file. The output defaults to
// the input with its extension replaced by ext.
func outputFlag(name, ext string, args []string) (in, out string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	output := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if fs.NArg() != 1 {
		return "", "", fmt.Errorf("%s: expected one song", name)
	}
	in, out = fs.Arg(0), *output
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ext
	}
	return in, out, nil
}

func runWriteWave(_ context.Context, e *env, args []string) error {
	in, out, err := outputFlag("writewave", ".wav", args)
	if err != nil {
		return err
	}
	song, err := midifile.LoadFile(in)
	if err != nil {
		return err
	}

	sf, err := render.LoadSoundFont(e.cfg.SoundFont)
	if err != nil {
		return err
	}
	backendCfg := e.cfg.BackendConfig()
	synth, err := render.NewSynth(sf, backendCfg.SampleRate)
	if err != nil {
		return err
	}
	rendered, err := render.RenderOffline(song, synth, render.Options{
		SampleRate:   backendCfg.SampleRate,
		Tail:         backendCfg.Tail,
		BufferFrames: backendCfg.BufferFrames,
	})
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := rendered.WriteWave(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s (%v)\n", out, rendered.Duration().Round(time.Millisecond))
	return nil
}

func runWriteMidi(_ context.Context, e *env, args []string) error {
	in, out, err := outputFlag("writemidi", ".mid", args)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("writemidi: output would overwrite %s", in)
	}
	song, err := midifile.LoadFile(in)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := midifile.WriteSMF(f, song); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", out)
	return nil
}

func runScan(ctx context.Context, e *env, args []string) error {
	dirs := args
	if len(dirs) == 0 {
		dirs = e.cfg.MusicDirectories
	}
	if len(dirs) == 0 {
		return errors.New("scan: no directories given or configured")
	}

	lib, err := e.loadLibrary()
	if err != nil {
		return err
	}
	result, err := lib.Scan(ctx, dirs)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	e.logScan(result)
	if err := lib.Save(e.libraryPath()); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "added %d songs, %d failed, %d in library\n",
		result.Added, len(result.Errors), lib.TotalSongs)
	return nil
}

func runStats(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("stats: expected one song")
	}
	song, err := midifile.LoadFile(args[0])
	if err != nil {
		return err
	}

	notes := 0
	for _, ev := range song.Events {
		if ev.Duration > 0 {
			notes++
		}
	}
	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "container\t%s\n", song.Container)
	fmt.Fprintf(w, "division\t%d\n", song.Division)
	fmt.Fprintf(w, "events\t%d\n", len(song.Events))
	fmt.Fprintf(w, "notes\t%d\n", notes)
	fmt.Fprintf(w, "length\t%d ticks\n", song.Length)
	fmt.Fprintf(w, "duration\t%v\n", song.Duration())
	fmt.Fprintf(w, "tempos\t%v\n", song.Tempos())
	return w.Flush()
}
