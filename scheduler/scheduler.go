package scheduler

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/recon"
)

const (
	defaultSchedule     = "0 1 * * *"
	defaultTimezone     = "America/Sao_Paulo"
	defaultMisfireGrace = 3600
)

// PaymentReconciler runs the period reconciliation flow for one company.
type PaymentReconciler interface {
	UpdatePaymentData(ctx context.Context, companyNumber int64, startDate time.Time, endDate time.Time) recon.Outcome
}

// lockObtainer is the slice of redislock.Client the daily run needs.
type lockObtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Scheduler fires the daily payment reconciliation. A single worker drains
// a one-slot trigger channel, so overlapping fires coalesce into one run
// and a run never executes concurrently with itself.
type Scheduler struct {
	engine       PaymentReconciler
	cron         *cron.Cron
	triggers     chan time.Time
	quit         chan struct{}
	misfireGrace time.Duration
	logger       *logrus.Logger
	now          func() time.Time
	locks        func() lockObtainer
}

func New(engine PaymentReconciler) *Scheduler {
	grace := defaultMisfireGrace
	if v := strings.TrimSpace(os.Getenv("RECON_JOB_MISFIRE_GRACE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			grace = n
		}
	}
	return &Scheduler{
		engine:       engine,
		triggers:     make(chan time.Time, 1),
		quit:         make(chan struct{}),
		misfireGrace: time.Duration(grace) * time.Second,
		logger:       config.GetLogger(),
		now:          time.Now,
		locks: func() lockObtainer {
			if locker := config.GetRedisLock(); locker != nil {
				return locker
			}
			return nil
		},
	}
}

// Start registers the cron entry and launches the worker. The schedule
// runs in a fixed business timezone so the fire time does not drift with
// the host clock.
func (s *Scheduler) Start() error {
	tz := strings.TrimSpace(os.Getenv("RECON_JOB_TIMEZONE"))
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return err
	}

	schedule := strings.TrimSpace(os.Getenv("RECON_JOB_SCHEDULE"))
	if schedule == "" {
		schedule = defaultSchedule
	}

	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(schedule, s.trigger); err != nil {
		return err
	}

	go s.worker()
	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"module":   "scheduler",
		"schedule": schedule,
		"timezone": tz,
	}).Info("daily payment reconciliation scheduled")
	return nil
}

// Stop halts the cron entry and signals the worker. It does not wait for
// an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.quit)
	s.logger.WithField("module", "scheduler").Info("scheduler stopped")
}

// trigger enqueues a run without blocking. When a run is already pending
// the new fire is dropped, collapsing bursts into a single execution.
func (s *Scheduler) trigger() {
	select {
	case s.triggers <- s.now():
	default:
	}
}

func (s *Scheduler) worker() {
	for {
		select {
		case firedAt := <-s.triggers:
			if s.now().Sub(firedAt) > s.misfireGrace {
				s.logger.WithFields(logrus.Fields{
					"module":  "scheduler",
					"firedAt": firedAt,
				}).Warn("discarding trigger past misfire grace")
				continue
			}
			s.runDaily()
		case <-s.quit:
			return
		}
	}
}

// runDaily reconciles yesterday's payments for every configured company.
// Companies are processed sequentially; one company failing does not stop
// the rest.
func (s *Scheduler) runDaily() {
	raw := strings.TrimSpace(os.Getenv("COMPANY_NUMBERS"))
	if raw == "" {
		s.logger.WithField("module", "scheduler").Error("COMPANY_NUMBERS is not configured; skipping run")
		return
	}

	companies := make([]int64, 0)
	for _, item := range strings.Split(raw, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"module": "scheduler",
				"value":  item,
			}).Error("invalid COMPANY_NUMBERS entry; skipping run")
			return
		}
		companies = append(companies, n)
	}

	yesterday := s.now().AddDate(0, 0, -1)

	s.logger.WithFields(logrus.Fields{
		"module":    "scheduler",
		"companies": companies,
		"date":      yesterday.Format("2006-01-02"),
	}).Info("starting daily payment reconciliation")

	for _, companyNumber := range companies {
		s.runCompany(companyNumber, yesterday)
	}

	s.logger.WithField("module", "scheduler").Info("daily payment reconciliation finished")
}

// runCompany runs one company inside a recover guard so a panic in one
// tenant cannot take down the worker or skip the remaining tenants.
func (s *Scheduler) runCompany(companyNumber int64, day time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"module":        "scheduler",
				"companyNumber": companyNumber,
				"panic":         r,
			}).Error("recovered from panic during company reconciliation")
		}
	}()

	ctx := context.Background()

	release := s.acquireLock(ctx, companyNumber)
	if release == nil {
		return
	}
	defer release()

	outcome := s.engine.UpdatePaymentData(ctx, companyNumber, day, day)
	if outcome.Success {
		s.logger.WithFields(logrus.Fields{
			"module":        "scheduler",
			"companyNumber": companyNumber,
			"message":       outcome.Message,
		}).Info("company reconciliation succeeded")
	} else {
		s.logger.WithFields(logrus.Fields{
			"module":        "scheduler",
			"companyNumber": companyNumber,
			"message":       outcome.Message,
		}).Error("company reconciliation failed")
	}
}

// acquireLock takes a best-effort distributed lock so two replicas do not
// reconcile the same company on the same night. A held lock skips the
// company; any other lock error (including no Redis at all) lets the run
// proceed.
func (s *Scheduler) acquireLock(ctx context.Context, companyNumber int64) func() {
	locker := s.locks()
	if locker == nil {
		return func() {}
	}

	key := "recon:daily:" + strconv.FormatInt(companyNumber, 10)
	lock, err := locker.Obtain(ctx, key, 10*time.Minute, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.WithFields(logrus.Fields{
				"module":        "scheduler",
				"companyNumber": companyNumber,
			}).Info("another replica holds the daily lock; skipping company")
			return nil
		}
		s.logger.WithFields(logrus.Fields{
			"module":        "scheduler",
			"companyNumber": companyNumber,
		}).Warn("could not talk to redis for daily lock; proceeding without it")
		return func() {}
	}
	return func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"module":        "scheduler",
				"companyNumber": companyNumber,
			}).Warn("failed to release daily lock")
		}
	}
}
