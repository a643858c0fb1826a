package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/notify"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// TrackerMaxAge is how long finished evaluations stay in the tracker.
	TrackerMaxAge = time.Hour

	// expiredReminderDays spaces reminders once a registration has lapsed.
	expiredReminderDays = 7
)

// reminderDays are the days left on which an expiring organisation is notified.
var reminderDays = map[int]bool{30: true, 14: true, 7: true, 3: true, 1: true, 0: true}

// Organisations lists every organisation regardless of caller.
type Organisations interface {
	ListAll(ctx context.Context) ([]orgs.Organisation, error)
}

// Notifier delivers expiry reminders.
type Notifier interface {
	PostExpiry(ctx context.Context, webhookURL string, msg notify.ExpiryMessage)
}

// Sweeper checks organisation registrations and prunes evaluation state.
type Sweeper struct {
	orgs     Organisations
	notifier Notifier
	auditor  *audit.Writer
	tracker  *risk.Tracker
	now      func() time.Time
}

// NewSweeper creates a sweeper. tracker may be nil.
func NewSweeper(organisations Organisations, notifier Notifier, auditor *audit.Writer, tracker *risk.Tracker) *Sweeper {
	return &Sweeper{
		orgs:     organisations,
		notifier: notifier,
		auditor:  auditor,
		tracker:  tracker,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result summarises one sweep.
type Result struct {
	Checked  int
	Notified int
	Pruned   int
}

// due reports whether an organisation in status with days left gets a
// reminder today.
func due(status orgs.ExpiryStatus, days int) bool {
	switch status {
	case orgs.ExpiryExpiringSoon:
		return reminderDays[days]
	case orgs.ExpiryExpired:
		return (-days-1)%expiredReminderDays == 0
	default:
		return false
	}
}

// Run executes one sweep. It is safe to run repeatedly; a reminder is only
// sent on the days it is due.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	log.Info().Msg("Starting expiry sweep")
	start := time.Now()

	var res Result
	if s.tracker != nil {
		res.Pruned = s.tracker.Prune(TrackerMaxAge)
	}

	all, err := s.orgs.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list organisations")
		return res, fmt.Errorf("expiry sweep failed: %w", err)
	}

	now := s.now()
	for i := range all {
		org := &all[i]
		res.Checked++

		status, days := org.Expiry(now)
		if !due(status, days) {
			continue
		}

		if org.SlackWebhookURL != "" {
			s.notifier.PostExpiry(ctx, org.SlackWebhookURL, notify.ExpiryMessage{
				OrgName:    org.Name,
				OperatorID: org.OperatorID,
				ExpiryDate: org.ExpiryDate,
				DaysLeft:   days,
			})
		}
		if err := s.auditor.LogOrgExpiryNotified(ctx, org.ID, string(status), days); err != nil {
			log.Error().Err(err).Str("org_id", org.ID).Msg("Failed to log audit event")
		}
		res.Notified++
	}

	log.Info().
		Int("orgs_checked", res.Checked).
		Int("orgs_notified", res.Notified).
		Int("evaluations_pruned", res.Pruned).
		Dur("duration", time.Since(start)).
		Msg("Expiry sweep completed")

	return res, nil
}

// Schedule registers the sweep on a UTC cron. Development runs it every
// minute, otherwise daily at 07:00.
func Schedule(s *Sweeper, dev bool) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	schedule := "0 7 * * *"
	if dev {
		schedule = "* * * * *"
	}

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Expiry sweep panicked")
			}
		}()

		if _, err := s.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("Expiry sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	return c, nil
}
