package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"

	"bioweaver/api"
	"bioweaver/audio"
	"bioweaver/capture"
	"bioweaver/config"
	"bioweaver/log"
	"bioweaver/upload"
)

var version = "dev"

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

func status(format string, args ...any) {
	fmt.Println(statusStyle.Render(fmt.Sprintf(format, args...)))
}

func fatal(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	configFlag := flag.String("config", "", "Config file path (default: ~/.config/bioweaver/config.toml)")
	apiFlag := flag.String("api", "", "API base URL (overrides config)")
	tokenFlag := flag.String("token", "", "Admin token (overrides config)")
	titleFlag := flag.String("title", "", "Chapter title (default: timestamped)")
	userFlag := flag.String("user", "", "User id for the upload (overrides config)")
	promptFlag := flag.String("prompt", "", "Anchor prompt sent with the upload")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	formatFlag := flag.String("format", "", "Recording format preference: flac or wav")
	copyFlag := flag.Bool("copy", false, "Copy the finished chapter text to the clipboard")
	listFlag := flag.String("list", "", "List a resource (users, chapters, books) and exit")
	polishFlag := flag.Int64("polish", 0, "Request polishing for a chapter id and exit")
	healthFlag := flag.Bool("health", false, "Check backend health and exit")
	statsFlag := flag.Bool("stats", false, "Print backend stats and exit")
	seedFlag := flag.Bool("seed-demo", false, "Seed demo data on the backend and exit")
	clearFlag := flag.Bool("clear-demo", false, "Clear demo data on the backend and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("bioweaver %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fatal("%v", err)
	}
	if *apiFlag != "" {
		cfg.APIBase = *apiFlag
	}
	if *tokenFlag != "" {
		cfg.AdminToken = *tokenFlag
	}
	if *userFlag != "" {
		cfg.UserID = *userFlag
	}
	if *formatFlag != "" {
		cfg.Formats = []string{*formatFlag}
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	client, err := api.NewClient(cfg.APIBase, cfg.AdminToken)
	if err != nil {
		fatal("%v", err)
	}

	ctx := context.Background()
	switch {
	case *healthFlag:
		runHealth(ctx, client)
		return
	case *statsFlag:
		runStats(ctx, client)
		return
	case *seedFlag:
		if _, err := client.SeedDemo(ctx); err != nil {
			fatal("seed demo: %v", err)
		}
		fmt.Println(okStyle.Render("demo data seeded"))
		return
	case *clearFlag:
		if _, err := client.ClearDemo(ctx); err != nil {
			fatal("clear demo: %v", err)
		}
		fmt.Println(okStyle.Render("demo data cleared"))
		return
	case *listFlag != "":
		runList(ctx, client, *listFlag)
		return
	case *polishFlag != 0:
		runPolish(ctx, client, *polishFlag, *copyFlag)
		return
	}

	runRecord(cfg, client, *titleFlag, *promptFlag, *deviceFlag, *setupFlag, *copyFlag)
}

func runHealth(ctx context.Context, client *api.Client) {
	rec, err := client.Health(ctx)
	if err != nil {
		fatal("backend unreachable: %v", err)
	}
	fmt.Println(okStyle.Render("backend ok"))
	printRecord(rec)
}

func runStats(ctx context.Context, client *api.Client) {
	st, err := client.Stats(ctx)
	if err != nil {
		fatal("stats: %v", err)
	}
	status("users: %d  chapters: %d  books: %d", st.Users, st.Chapters, st.Books)
}

func runList(ctx context.Context, client *api.Client, resource string) {
	res, err := client.List(ctx, resource, api.ListParams{})
	if err != nil {
		fatal("list %s: %v", resource, err)
	}
	status("%s (%d)", resource, res.Total)
	for _, rec := range res.Data {
		printRecord(rec)
		fmt.Println()
	}
}

func printRecord(rec api.Record) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, rec[k])
	}
}

func runPolish(ctx context.Context, client *api.Client, chapterID int64, copyText bool) {
	status("polishing chapter %d...", chapterID)
	ch, err := client.Polish(ctx, chapterID)
	if err != nil {
		fatal("polish: %v", err)
	}
	printChapter(ch, copyText)
}

func printChapter(ch api.Chapter, copyText bool) {
	fmt.Println(titleStyle.Render(ch.Title))
	text := ch.BestText()
	fmt.Println(textStyle.Render(text))
	if ch.PolishedByModel != "" {
		status("polished by %s", ch.PolishedByModel)
	}
	if copyText && text != "" {
		if err := clipboard.WriteAll(text); err != nil {
			log.Warnf("clipboard copy failed: %v", err)
		} else {
			fmt.Println(okStyle.Render("(copied to clipboard)"))
		}
	}
}

// finishRecording stops the session, accepting that the duration cap
// may have stopped it first; the assembled blob wins over the state
// error in that race.
func finishRecording(sess *capture.Session) (*capture.Blob, error) {
	blob, err := sess.Stop()
	if err == nil {
		return blob, nil
	}
	if sess.Phase() == capture.PhaseStopped {
		if b := sess.Blob(); b != nil {
			return b, nil
		}
	}
	return nil, err
}

func runRecord(cfg config.Config, client *api.Client, title, prompt, deviceName string, setup, copyText bool) {
	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fatal("initializing audio: %v", err)
	}
	defer actx.Close()

	var dev *audio.DeviceInfo
	switch {
	case deviceName != "":
		dev, err = audio.FindDevice(actx, deviceName)
		if err != nil {
			fatal("%v", err)
		}
	case setup:
		dev, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Println("Warning: device selection failed, falling back to default device")
			dev = nil
		}
	}

	sess := capture.New(actx, capture.Options{
		Device:     dev,
		Formats:    cfg.Formats,
		MaxSeconds: cfg.MaxRecordSecs,
	})
	defer sess.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := sess.Start(); err != nil {
		if sess.Permission() == capture.PermissionDenied {
			fatal("microphone access denied")
		}
		fatal("starting recording: %v", err)
	}
	log.SessionStart(cfg.APIBase, sess.Format().Name)

	devLabel := "system default"
	if dev != nil {
		devLabel = dev.Name
	}
	status("mic: %s  format: %s", devLabel, sess.Format().Name)
	fmt.Println(recStyle.Render("● recording") + helpStyle.Render("  (Enter stops, Ctrl-C cancels)"))

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-sigChan:
		sess.Cancel()
		status("cancelled")
		return
	}

	blob, err := finishRecording(sess)
	if err != nil {
		fatal("stopping recording: %v", err)
	}
	if blob.Seconds >= cfg.MaxRecordSecs {
		status("recording hit the %ds cap", cfg.MaxRecordSecs)
	}
	status("recorded %ds (%.1f KB, %s)", blob.Seconds, float64(len(blob.Data))/1024, blob.MIME)

	if title == "" {
		title = "Chapter " + time.Now().Format("2006-01-02 15:04")
	}

	upCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigChan
		cancel()
	}()

	uploader := upload.NewUploader(client)
	ch, err := uploader.Submit(upCtx, upload.Upload{
		UserID:       cfg.UserID,
		Title:        title,
		AnchorPrompt: prompt,
		Ext:          blob.Ext,
		MIME:         blob.MIME,
		Data:         blob.Data,
		Seconds:      blob.Seconds,
	})
	if err != nil {
		log.Errorf("upload error: %v", err)
		fatal("uploading: %v", err)
	}
	status("uploaded chapter %d, waiting for transcription...", ch.ID)

	tracker := upload.NewTracker(client, cfg.PollInterval)
	defer tracker.Close()

	select {
	case done, ok := <-tracker.Watch(upCtx, ch.ID):
		if !ok {
			status("watch ended without a result")
			return
		}
		printChapter(done, copyText)
		log.ChapterText(done.ID, done.Title, done.BestText())
		log.SessionEnd(1)
	case <-upCtx.Done():
		status("cancelled; chapter %d is still processing on the server", ch.ID)
	}
}
