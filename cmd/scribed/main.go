package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/collabtext/scribe/pkg/database"
	"github.com/collabtext/scribe/pkg/logger"
	"github.com/collabtext/scribe/pkg/session"
)

// Config holds all server configuration, read from the environment the
// same way the teacher's main.go does (spec.md §9: interactive prompts
// are replaced by explicit config).
type Config struct {
	Port                 string
	SessionName          string
	SessionPassword      string
	BufferName           string
	ExpiryDays           int
	CleanupInterval      time.Duration
	AuditSQLiteURI       string
	WSReadTimeout        time.Duration
	WSWriteTimeout       time.Duration
	BroadcastBufferSize  int
}

func main() {
	logger.Init()

	config := Config{
		Port:                getEnv("PORT", "3030"),
		SessionName:         getEnv("SESSION_NAME", "default"),
		SessionPassword:     os.Getenv("SESSION_PASSWORD"),
		BufferName:          getEnv("BUFFER_NAME", "scratch"),
		ExpiryDays:          getEnvInt("EXPIRY_DAYS", 7),
		CleanupInterval:     time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", 1)) * time.Hour,
		AuditSQLiteURI:      os.Getenv("AUDIT_SQLITE_URI"),
		WSReadTimeout:       time.Duration(getEnvInt("WS_READ_TIMEOUT_MINUTES", 30)) * time.Minute,
		WSWriteTimeout:      time.Duration(getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		BroadcastBufferSize: getEnvInt("BROADCAST_BUFFER_SIZE", 16),
	}

	logger.Info("Starting scribe session server...")
	logger.Info("Port: %s, session: %s", config.Port, config.SessionName)

	var db *database.Database
	if config.AuditSQLiteURI != "" {
		logger.Info("Audit log: %s", config.AuditSQLiteURI)
		var err error
		db, err = database.New(config.AuditSQLiteURI)
		if err != nil {
			logger.Error("Failed to initialize audit log: %v", err)
			log.Fatalf("Failed to initialize audit log: %v", err)
		}
		defer db.Close()
	} else {
		logger.Info("Audit log: disabled")
	}

	manager := session.NewSessionManager()
	hub, err := manager.Create(config.SessionName, config.SessionPassword, config.BroadcastBufferSize, db)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	hub.ShareBuffer(config.BufferName, "text")

	srv := session.NewHTTPServer(manager, config.WSReadTimeout, config.WSWriteTimeout)

	stop := make(chan struct{})
	go hub.StartCleaner(stop, time.Duration(config.ExpiryDays)*24*time.Hour, config.CleanupInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		close(stop)
		srv.ShutdownAll()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%s", config.Port)
	log.Fatal(srv.ListenAndServe(addr))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
