package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/barnettlynn/mfcrack/internal/emulator"
	"github.com/barnettlynn/mfcrack/mfdump/internal/config"
	"github.com/barnettlynn/mfcrack/pkg/mifare"
	"github.com/barnettlynn/mfcrack/pkg/recovery"
	"github.com/barnettlynn/mfcrack/pkg/solver"
)

const configFileName = "config.yaml"

type device interface {
	mifare.Device
	Close()
}

// emulatedDevice gives the emulator the Close of a real connection.
type emulatedDevice struct {
	*emulator.Card
}

func (emulatedDevice) Close() {}

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the executable or in cwd)")
	emulatorDump := flag.String("emulator", "", "attack an emulated card loaded from this hex dump instead of a reader")
	emulatorPRNG := flag.String("emulator-prng", "weak", "PRNG type of the emulated card: weak, static or hard")
	outPath := flag.String("o", "", "dump output file (overrides config.output.dump_file)")
	format := flag.String("format", "", "dump format: hex or flipper (overrides config.output.format)")
	flag.Parse()

	// Configure slog
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	emulated := *emulatorDump != ""
	cfg, err := loadConfig(*configFlag, emulated)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *outPath != "" {
		cfg.Output.DumpFile = *outPath
	}
	if *format != "" {
		cfg.Output.Format = *format
		if err := cfg.ValidateWithMode(config.ValidationEmulator); err != nil {
			log.Fatalf("invalid -format: %v", err)
		}
	}

	dictionary, err := loadDictionary(cfg)
	if err != nil {
		log.Fatalf("dictionary load failed: %v", err)
	}
	fmt.Printf("Dictionary: %d keys\n", len(dictionary))

	// Connect to reader or emulator
	var dev device
	if emulated {
		prng, err := mifare.ParsePRNGType(*emulatorPRNG)
		if err != nil {
			log.Fatalf("invalid -emulator-prng: %v", err)
		}
		card, err := emulator.LoadFile(*emulatorDump, prng)
		if err != nil {
			log.Fatalf("emulator load failed: %v", err)
		}
		dev = emulatedDevice{card}
		fmt.Printf("Emulator mode: using dump %s\n", *emulatorDump)
	} else {
		conn, err := mifare.Connect(*cfg.Runtime.ReaderIndex)
		if err != nil {
			log.Fatal(err)
		}
		dev = conn
		fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)
	}
	defer dev.Close()

	info, err := dev.Identify()
	if err != nil {
		log.Fatalf("tag detection failed: %v", err)
	}
	if prng, ok := cfg.PRNGOverride(); ok {
		info.PRNG = prng
	}
	mifare.PrintCardInfo(info)
	if md, ok := dev.(mifare.MagicDetector); ok {
		if magic, err := md.CheckGen1a(); err == nil && magic {
			fmt.Println("Magic 1A FOUND!")
		}
	}

	var sink recovery.CaptureSink
	if cfg.Output.CaptureArchive != "" {
		archive, err := mifare.CreateCaptureArchive(cfg.Output.CaptureArchive)
		if err != nil {
			log.Fatal(err)
		}
		defer archive.Close()
		sink = archive
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	sess := recovery.NewSession(info)
	attackOpts := recovery.Options{
		Dictionary: dictionary,
		Solver:     newSolver(cfg, emulated),
		Sink:       sink,
	}

	var bar *pb.ProgressBar
	if showProgress(cfg, *verbose) {
		bar = pb.New(2 * info.Type.SectorCount()).SetWriter(os.Stderr)
		bar.Start()
		attackOpts.OnOutcome = func(recovery.Outcome) { bar.Increment() }
	}

	outcomes, err := recovery.NewAttack(dev, sess, attackOpts).Run(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		log.Fatalf("attack aborted: %v", err)
	}
	found, failed := recovery.Summarize(outcomes)
	fmt.Printf("Keys: %d found, %d missing\n", found, failed)

	fmt.Println("Dumping...")
	lines, err := recovery.NewReconstructor(dev, sess).Reconstruct(ctx)
	if err != nil {
		log.Fatalf("dump aborted: %v", err)
	}

	recovery.PrintKeyTable(os.Stdout, sess)

	if err := writeDump(cfg, info, lines); err != nil {
		log.Fatalf("write dump failed: %v", err)
	}
	if cfg.Output.KeysFile != "" {
		err := writeFile(cfg.Output.KeysFile, func(w io.Writer) error {
			return mifare.WriteKeyList(w, sess.FoundKeys())
		})
		if err != nil {
			log.Fatalf("write keys failed: %v", err)
		}
		fmt.Printf("Keys written to %s\n", cfg.Output.KeysFile)
	}

	fmt.Printf("took %s\n", time.Since(start).Round(time.Millisecond))
}

func loadConfig(flagPath string, emulated bool) (*config.Config, error) {
	mode := config.ValidationFull
	if emulated {
		mode = config.ValidationEmulator
	}

	path := flagPath
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path failed: %w", err)
		}
		// Emulator runs work without a config file.
		if emulated && !fileExists(path) {
			cfg := &config.Config{}
			return cfg, cfg.ValidateWithMode(mode)
		}
	}
	fmt.Printf("Using config: %s\n", path)
	return config.LoadWithMode(path, mode)
}

// newSolver picks the nested solver. Emulated captures only decode with the
// emulator's own solver, so solver.command is ignored in emulator mode.
func newSolver(cfg *config.Config, emulated bool) recovery.Solver {
	if emulated {
		if len(cfg.Solver.Command) > 0 {
			slog.Warn("ignoring solver.command in emulator mode", "command", cfg.Solver.Command[0])
		}
		return emulator.Solver{}
	}
	if len(cfg.Solver.Command) == 0 {
		return nil
	}
	exec := &solver.Exec{Command: cfg.Solver.Command}
	if cfg.Solver.TimeoutSeconds != nil {
		exec.Timeout = time.Duration(*cfg.Solver.TimeoutSeconds) * time.Second
	}
	return exec
}

func loadDictionary(cfg *config.Config) ([]mifare.Key, error) {
	var keys []mifare.Key
	if cfg.Dictionary.File != "" {
		loaded, err := mifare.LoadDictionaryFile(cfg.Dictionary.File)
		if err != nil {
			return nil, err
		}
		keys = loaded
	} else {
		keys = mifare.DefaultDictionary()
	}
	return append(cfg.ExtraKeys(), keys...), nil
}

func showProgress(cfg *config.Config, verbose bool) bool {
	if cfg.Runtime.Progress != nil && !*cfg.Runtime.Progress {
		return false
	}
	return !verbose && term.IsTerminal(int(os.Stderr.Fd()))
}

func writeDump(cfg *config.Config, info *mifare.CardInfo, lines []string) error {
	write := func(w io.Writer) error {
		if cfg.Output.Format == config.FormatFlipper {
			return mifare.WriteFlipperNFC(w, info, lines)
		}
		return mifare.WriteHexDump(w, lines)
	}
	if cfg.Output.DumpFile == "" {
		return write(os.Stdout)
	}
	if err := writeFile(cfg.Output.DumpFile, write); err != nil {
		return err
	}
	fmt.Printf("Dump written to %s\n", cfg.Output.DumpFile)
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
