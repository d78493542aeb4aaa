package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"ytmanager"
	"ytmanager/config"
	"ytmanager/googleauth"
	"ytmanager/pipeline"
	"ytmanager/storage"
	"ytmanager/youtube"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "process":
		cmdProcess(args)
	case "run":
		cmdRun(args)
	case "history":
		cmdHistory(args)
	case "check":
		cmdCheck(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		// A bare URL is treated as a process command
		if strings.Contains(command, "youtube.com") || strings.Contains(command, "youtu.be") {
			cmdProcess(os.Args[1:])
			return
		}
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytmanager - YouTube video manager for Google Sheets and Drive

Usage:
  ytmanager process <youtube-url>   Download one video, record it, upload to Drive
  ytmanager run                     Interactive mode, prompt for URLs
  ytmanager history [flags]         Show recently processed videos
  ytmanager check [youtube-url]     Verify credentials, yt-dlp and storage layout
  ytmanager help                    Show this help message

Examples:
  ytmanager process https://www.youtube.com/watch?v=dQw4w9WgXcQ
  ytmanager https://youtu.be/dQw4w9WgXcQ        # process (default)
  ytmanager history -n 20
  ytmanager check

Configuration is read from ytmanager.json or YTMANAGER_* environment
variables. YTMANAGER_SPREADSHEET_ID is required.

For help on specific command: ytmanager <command> -h
`)
}

func cmdProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	noProgress := fs.Bool("no-progress", false, "Disable progress bars")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytmanager process [flags] <youtube-url>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing youtube-url\n")
		fs.Usage()
		os.Exit(1)
	}

	mgr, log := mustManager()
	defer mgr.Close()
	defer log.Sync()

	if err := processOne(context.Background(), mgr, argv[0], !*noProgress); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	noProgress := fs.Bool("no-progress", false, "Disable progress bars")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytmanager run [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	mgr, log := mustManager()
	defer mgr.Close()
	defer log.Sync()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Enter YouTube URL (q to quit): ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "q" || line == "quit" || line == "exit" {
			break
		}

		if err := processOne(context.Background(), mgr, line, !*noProgress); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 10, "Number of videos to show")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytmanager history [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ledger, err := storage.OpenLedger(cfg.LedgerPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	recs, err := ledger.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ledger: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("No videos processed yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO ID\tTITLE\tSIZE\tSTATUS\tDOWNLOADED")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.VideoID,
			truncate(r.Title, 50),
			formatSize(r.FileSizeBytes),
			r.UploadStatus,
			r.DownloadedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d videos\n", len(recs))
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytmanager check [youtube-url]\n\nWithout a URL, verifies the setup. With a URL, also reports whether\nthe video was already processed. No remote writes either way.\n")
	}
	fs.Parse(args)

	failed := false
	report := func(name string, err error) {
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", name, err)
			failed = true
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	cfg, err := config.Load()
	report("config", err)
	if err != nil {
		os.Exit(1)
	}

	report("storage layout", cfg.EnsureDirs())

	creds, err := googleauth.Load(cfg.CredentialsFile)
	report("credentials", err)
	if err == nil {
		fmt.Printf("      service account: %s\n", creds.Email)
	}

	if cfg.Downloader == config.DownloaderYtdlp {
		_, err := exec.LookPath(cfg.YtdlpPath)
		report("yt-dlp", err)
	}

	ctx := context.Background()
	ledger, err := storage.OpenLedger(cfg.LedgerPath())
	report("ledger", err)
	if err == nil {
		defer ledger.Close()
		if count, err := ledger.Count(ctx); err == nil {
			fmt.Printf("      %d videos recorded\n", count)
		}
	}

	if argv := fs.Args(); len(argv) > 0 {
		videoID, err := youtube.ParseVideoID(argv[0])
		report("url", err)
		if err == nil && ledger != nil {
			fmt.Printf("      video id: %s\n", videoID)
			if has, err := ledger.Has(ctx, videoID); err == nil {
				if has {
					fmt.Println("      already processed")
				} else {
					fmt.Println("      not processed yet")
				}
			}
		}
	}

	if failed {
		os.Exit(1)
	}
}

// mustManager loads config, builds the file logger and wires the manager,
// exiting on any failure.
func mustManager() (*ytmanager.Manager, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}

	mgr, err := ytmanager.NewWithConfig(context.Background(), cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return mgr, log
}

func processOne(ctx context.Context, mgr *ytmanager.Manager, rawURL string, progress bool) error {
	proc := mgr.Processor()

	if progress {
		var downloadBar, uploadBar *progressbar.ProgressBar

		proc.OnDownloadProgress = func(percent float64) {
			if downloadBar == nil {
				downloadBar = progressbar.NewOptions(100,
					progressbar.OptionSetDescription("downloading"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
			}
			downloadBar.Set(int(percent))
		}
		proc.OnUploadProgress = func(current, total int64) {
			if uploadBar == nil {
				uploadBar = progressbar.NewOptions64(total,
					progressbar.OptionSetDescription("uploading"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowBytes(true),
					progressbar.OptionClearOnFinish(),
				)
			}
			uploadBar.Set64(current)
		}
		defer func() {
			if downloadBar != nil {
				downloadBar.Finish()
			}
			if uploadBar != nil {
				uploadBar.Finish()
			}
			proc.OnDownloadProgress = nil
			proc.OnUploadProgress = nil
		}()
	}

	res, err := mgr.Process(ctx, rawURL)
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyProcessed) {
			fmt.Println("Already processed, skipping.")
			return nil
		}
		return err
	}

	fmt.Printf("Processed %q (%s)\n", res.Title, res.VideoID)
	fmt.Printf("  status:  %s\n", res.Status)
	fmt.Printf("  size:    %s\n", formatSize(res.FileSize))
	if res.DriveFileID != "" {
		fmt.Printf("  drive:   %s\n", res.DriveFileID)
	}
	if res.LocalPath != "" {
		fmt.Printf("  file:    %s\n", res.LocalPath)
	}
	fmt.Printf("  elapsed: %s\n", res.Duration.Round(time.Second))
	return nil
}

// buildLogger writes JSON logs to the log directory; the console stays
// reserved for user-facing output.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	name := "ytmanager-" + time.Now().Format("20060102-150405") + ".log"
	zapCfg.OutputPaths = []string{filepath.Join(cfg.LogDir(), name)}
	zapCfg.ErrorOutputPaths = zapCfg.OutputPaths

	return zapCfg.Build()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGT"[exp])
}
