package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/databases"
)

// notificationRetention is how long read notifications are kept before the
// nightly purge removes them
const notificationRetention = 30 * 24 * time.Hour

// Scheduler handles periodic background jobs
type Scheduler struct {
	cron *cron.Cron
	NDB  databases.NotificationDatabase
}

// NewScheduler creates a new scheduler instance
func NewScheduler(nDB databases.NotificationDatabase) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		NDB:  nDB,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Purge old read notifications daily at 3 AM UTC
	_, err := s.cron.AddFunc("0 3 * * *", s.purgeReadNotifications)
	if err != nil {
		zap.S().Errorw("failed to register notification purge job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("notification scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("notification scheduler stopped")
}

// purgeReadNotifications deletes read notifications older than the retention
// window. Unread notifications are kept until the user acts on them.
func (s *Scheduler) purgeReadNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-notificationRetention)
	filter := bson.M{
		"isRead":    true,
		"createdAt": bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)},
	}

	deleted, err := s.NDB.DeleteMany(ctx, filter)
	if err != nil {
		zap.S().Errorw("failed to purge read notifications", "error", err)
		return
	}

	zap.S().Infow("notification purge complete", "deleted", deleted)
}
