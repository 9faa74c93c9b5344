// Command server is the composition root for the core: it loads
// configuration, builds automation.Unified, ensures the default index
// exists, and then runs a periodic health-watch loop over
// HealthMonitor.FullReport until signaled to stop. Per spec.md §1, the
// external MCP tool server this composition historically fronted is out of
// scope as a collaborator; this binary keeps the composition-root idiom
// (configuration -> facade -> background loop -> graceful shutdown) minus
// the protocol itself.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/henryperkins/mcprag-sub001/internal/automation"
	"github.com/henryperkins/mcprag-sub001/internal/schema"
	"github.com/henryperkins/mcprag-sub001/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCtx, logCancel := context.WithCancel(context.Background())
	defer logCancel()

	logCloser, err := setupLogging(logCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	log.Printf("Configuration loaded successfully")
	log.Printf("Service endpoint: %s", cfg.Service.Endpoint)
	log.Printf("Embedding provider: %s (dimensions=%d)", cfg.Embedding.Provider, cfg.Embedding.Dimensions)
	if cfg.Logging.Enabled {
		log.Printf("Logging to: %s", filepath.Join(cfg.Logging.Directory, "mcprag-sub001.log"))
	}

	u, err := automation.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize automation facade: %v", err)
	}
	defer u.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := u.EnsureIndexExists(ctx, []schema.Feature{schema.FeatureFacetedSearch}, nil); err != nil {
		log.Printf("Warning: failed to ensure default index exists: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal...")
		cancel()
	}()

	log.Println("Starting health-watch loop...")
	runHealthWatch(ctx, u, cfg)
	log.Println("Server shut down cleanly.")
}

// runHealthWatch periodically composes a full health report (spec.md
// §4.11) for the configured default index, logging the overall status and
// any issues, until ctx is cancelled. No indexer names are passed, so the
// report carries no per-indexer health.
func runHealthWatch(ctx context.Context, u *automation.Unified, cfg *config.Config) {
	interval := 5 * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	checkOnce := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		report := u.Health.FullReport(checkCtx, []string{cfg.Service.IndexName}, nil, 24)
		log.Printf("health: overall=%s issues=%d", report.Overall, len(report.Issues))
		for _, issue := range report.Issues {
			log.Printf("health issue [%s/%s]: %s", issue.Severity, issue.Type, issue.Message)
		}
	}

	checkOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkOnce()
		}
	}
}

// logManager handles log file rotation with proper synchronization.
type logManager struct {
	mu          sync.Mutex
	logFilePath string
	logFile     *os.File
	config      config.LoggingConfig
}

func newLogManager(logFilePath string, cfg config.LoggingConfig) (*logManager, error) {
	lm := &logManager{
		logFilePath: logFilePath,
		config:      cfg,
	}
	if err := lm.openLogFile(); err != nil {
		return nil, err
	}
	return lm, nil
}

func (lm *logManager) openLogFile() error {
	logFile, err := os.OpenFile(lm.logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	lm.logFile = logFile

	multiWriter := io.MultiWriter(os.Stderr, logFile)
	log.SetOutput(multiWriter)

	return nil
}

// rotate performs log rotation and reopens the file.
func (lm *logManager) rotate() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.logFile != nil {
		lm.logFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	backupPath := fmt.Sprintf("%s.%s", lm.logFilePath, timestamp)

	if err := os.Rename(lm.logFilePath, backupPath); err != nil {
		lm.openLogFile()
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := lm.openLogFile(); err != nil {
		return err
	}

	log.Printf("Log file rotated: %s", backupPath)

	if lm.config.Compress {
		go compressLogFile(backupPath)
	}

	cleanOldLogFiles(filepath.Dir(lm.logFilePath), lm.config.MaxBackups, lm.config.MaxAgeDays)

	return nil
}

func (lm *logManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.logFile != nil {
		return lm.logFile.Close()
	}
	return nil
}

// setupLogging configures logging to write to both file and stderr.
func setupLogging(ctx context.Context, cfg *config.Config) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix("[mcprag-sub001] ")

	if !cfg.Logging.Enabled || cfg.Logging.Directory == "" {
		return nil, nil
	}

	if err := os.MkdirAll(cfg.Logging.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := "mcprag-sub001.log"
	logFilePath := filepath.Join(cfg.Logging.Directory, logFileName)

	logMgr, err := newLogManager(logFilePath, cfg.Logging)
	if err != nil {
		return nil, err
	}

	go rotateLogFileWithContext(ctx, logMgr)

	return logMgr, nil
}

// rotateLogFileWithContext periodically checks and rotates log files based
// on configuration. It respects the context and exits gracefully when the
// context is cancelled.
func rotateLogFileWithContext(ctx context.Context, logMgr *logManager) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Log rotation goroutine shutting down...")
			return
		case <-ticker.C:
			fileInfo, err := os.Stat(logMgr.logFilePath)
			if err != nil {
				continue
			}

			maxSizeBytes := int64(logMgr.config.MaxSizeMB) * 1024 * 1024
			if fileInfo.Size() > maxSizeBytes {
				if err := logMgr.rotate(); err != nil {
					log.Printf("Failed to rotate log file: %v", err)
				}
			}
		}
	}
}

// compressLogFile compresses a log file using gzip.
func compressLogFile(filePath string) {
	// Note: For simplicity, we're skipping compression implementation
	// In production, you'd use gzip.Writer here
	log.Printf("Log compression requested for: %s (not implemented)", filePath)
}

// cleanOldLogFiles removes rotated log backups older than maxAgeDays. When
// more than maxBackups backups remain it logs a warning; it does not remove
// backups by count.
func cleanOldLogFiles(logDir string, maxBackups, maxAgeDays int) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	var backupFiles []os.DirEntry
	for _, entry := range entries {
		if ok, _ := filepath.Match("mcprag-sub001.log.*", entry.Name()); !entry.IsDir() && ok {
			backupFiles = append(backupFiles, entry)
		}
	}

	now := time.Now()
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour

	for _, file := range backupFiles {
		info, err := file.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) > maxAge {
			filePath := filepath.Join(logDir, file.Name())
			os.Remove(filePath)
			log.Printf("Removed old log file: %s", filePath)
		}
	}

	if len(backupFiles) > maxBackups {
		log.Printf("Log backup count (%d) exceeds max (%d), oldest files should be removed", len(backupFiles), maxBackups)
	}
}
