package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog     zerolog.Logger
	diagFile    *os.File
	chapterFile *os.File
	logMu       sync.Mutex
	logReady    bool
	pid         int
	dir         string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: BIOWEAVER_LOG_PATH environment variable
	envPath := os.Getenv("BIOWEAVER_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	chapterPath := filepath.Join(dir, "chapter_log.txt")
	chapterFile, err = os.OpenFile(chapterPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if chapterFile != nil {
		chapterFile.Close()
		chapterFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// UploadMetrics is logged once per successful chapter upload.
type UploadMetrics struct {
	ChapterID  int64
	AudioS     float64
	BlobKB     float64
	MIME       string
	UploadMs   float64
	StatusCode int
}

func Upload(m UploadMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int64("chapter_id", m.ChapterID).
		Float64("audio_s", m.AudioS).
		Float64("blob_kb", m.BlobKB).
		Str("mime", m.MIME).
		Float64("upload_ms", m.UploadMs).
		Int("status", m.StatusCode).
		Msg("upload")
}

func WatchDone(chapterID int64, polls int, polished bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int64("chapter_id", chapterID).
		Int("polls", polls).
		Bool("polished", polished).
		Msg("watch_done")
}

// ChapterText appends the finished chapter text to chapter_log.txt so a
// session's results survive the process.
func ChapterText(chapterID int64, title, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t#%d\t%s\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, chapterID, title, text)
	chapterFile.WriteString(line)
}

func SessionStart(apiBase, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("api", apiBase).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(uploads int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("uploads", uploads).
		Msg("session_end")
}
