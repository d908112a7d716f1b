package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moodlesync/internal/config"
	"moodlesync/internal/moodle"
	"moodlesync/internal/notify"
	"moodlesync/internal/queue"
	"moodlesync/internal/reconcile"
	"moodlesync/internal/skillsforge"
	"moodlesync/internal/store"
)

// Worker runs reconciliation cycles on an interval and on queue triggers
// published by the ops API.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(16)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "moodlesync:triggers")
	}

	sf := skillsforge.New(cfg.SFHost, cfg.SFToken, cfg.SFFake)
	md := moodle.New(cfg.MoodleHost, cfg.MoodleToken, cfg.MoodleFunction, cfg.MoodleFake)
	repo := reconcile.NewRepository(db.Client)
	engine := reconcile.NewEngine(md, sf)

	var notifier reconcile.Notifier
	if cfg.PostmarkToken != "" && len(cfg.EmailRecipients) > 0 {
		notifier = notify.New(cfg.PostmarkToken, cfg.EmailSender, cfg.EmailRecipients)
		log.Printf("error reports go to %d recipient(s)", len(cfg.EmailRecipients))
	} else {
		log.Println("WARNING: email reporting not configured (POSTMARK_TOKEN / EMAIL_RECIPIENTS not set)")
	}

	runner := reconcile.NewRunner(sf, engine, repo, notifier)
	lock := store.NewRunLock(redisClient.Client, "moodlesync:run-lock", cfg.RunLockTTL)

	runLocked := func() {
		held, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("run lock unavailable: %v", err)
			return
		}
		if !held {
			log.Println("another cycle holds the run lock, skipping")
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Printf("run lock release failed: %v", err)
			}
		}()
		if _, err := runner.Run(ctx); err != nil {
			log.Printf("cycle aborted: %v", err)
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	log.Printf("worker started, reconciling every %s", cfg.RunInterval)
	runLocked()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped")
			return
		case <-ticker.C:
			runLocked()
		case msg, ok := <-messages:
			if !ok {
				log.Println("worker stopped")
				return
			}
			if msg.Type != queue.TypeReconcile {
				continue
			}
			log.Println("run trigger received")
			runLocked()
		}
	}
}
