package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// Default timeouts.
const (
	// DefaultRunNowTimeout bounds a manual execution end to end.
	DefaultRunNowTimeout = 30 * time.Second

	// defaultStoreTimeout bounds the bookkeeping writes after an execution.
	defaultStoreTimeout = 10 * time.Second
)

// DeviceLinks sends commands to devices. Results carry link failures;
// nothing here returns an error.
type DeviceLinks interface {
	Take(ctx context.Context, addr devicelink.Address, takeID int) devicelink.Result
	Route(ctx context.Context, addr devicelink.Address, source, destination int) devicelink.Result
	Disconnect(deviceID string)
	DisconnectAll()
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Scheduler. The zero value is usable.
type Options struct {
	// Location is the timezone cron expressions are evaluated in.
	// Default: time.Local.
	Location *time.Location

	// RunNowTimeout bounds RunNow. Default: 30 seconds.
	RunNowTimeout time.Duration

	// Now overrides the clock used for next-run computation and run
	// timestamps. Default: time.Now.
	Now func() time.Time

	Logger Logger
}

// activeJob is the live timer or cron entry for one schedule.
type activeJob struct {
	schedule Schedule
	device   device.Device

	cronSchedule cron.Schedule // recurring only
	entryID      cron.EntryID  // recurring only
	timer        *time.Timer   // once only

	next time.Time
}

// Scheduler turns schedule records into timed command executions.
//
// Thread Safety: all methods are safe for concurrent use. Executions for
// different schedules run concurrently; commands to the same device are
// serialised by its link.
type Scheduler struct {
	store  Store
	links  DeviceLinks
	loc    *time.Location
	now    func() time.Time
	logger Logger

	runNowTimeout time.Duration
	storeTimeout  time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	jobs     map[string]*activeJob
	started  bool
	stopped  bool
	inflight sync.WaitGroup

	subsMu    sync.RWMutex
	subs      map[uint64]func(Execution)
	nextSubID uint64
}

// New creates a Scheduler. No jobs are installed until Start or LoadAll.
func New(store Store, links DeviceLinks, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.RunNowTimeout <= 0 {
		opts.RunNowTimeout = DefaultRunNowTimeout
	}

	cl := cronLogger{opts.Logger}
	return &Scheduler{
		store:         store,
		links:         links,
		loc:           opts.Location,
		now:           opts.Now,
		logger:        opts.Logger,
		runNowTimeout: opts.RunNowTimeout,
		storeTimeout:  defaultStoreTimeout,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		jobs: make(map[string]*activeJob),
		subs: make(map[uint64]func(Execution)),
	}
}

// Start runs the cron clock and loads every enabled schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	s.mu.Unlock()

	return s.LoadAll(ctx)
}

// LoadAll schedules every enabled schedule in the store. A schedule that
// cannot be installed is logged and skipped.
func (s *Scheduler) LoadAll(ctx context.Context) error {
	schedules, err := s.store.GetEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	for _, sw := range schedules {
		if err := s.ScheduleJob(ctx, sw); err != nil {
			s.logger.Error("failed to schedule job",
				"schedule_id", sw.ID,
				"device_id", sw.DeviceID,
				"error", err,
			)
		}
	}

	s.logger.Info("schedules loaded", "enabled", len(schedules), "active_jobs", s.ActiveJobCount())
	return nil
}

// ScheduleJob installs the Active Job for sw, replacing any existing one.
//
// A once schedule whose run time has already passed installs nothing and
// leaves next_run untouched. Otherwise the computed fire time is persisted
// as next_run.
func (s *Scheduler) ScheduleJob(ctx context.Context, sw ScheduleWithDevice) error {
	id := sw.ID
	now := s.now()

	if !sw.Enabled || !sw.Device.Enabled {
		s.CancelJob(id)
		return nil
	}

	job := &activeJob{schedule: sw.Schedule, device: sw.Device}

	switch sw.ScheduleKind {
	case ScheduleRecurring:
		cs, err := ParseCron(sw.CronExpression)
		if err != nil {
			s.CancelJob(id)
			return err
		}
		job.cronSchedule = cs
		job.next = cs.Next(now.In(s.loc))

	case ScheduleOnce:
		if sw.RunAt == nil {
			s.CancelJob(id)
			return fmt.Errorf("%w: once schedule %s has no run_at", ErrInvalidSchedule, id)
		}
		if !sw.RunAt.After(now) {
			s.CancelJob(id)
			s.logger.Debug("run time already passed, not scheduling",
				"schedule_id", id,
				"run_at", sw.RunAt.Format(time.RFC3339),
			)
			return nil
		}
		job.next = *sw.RunAt

	default:
		s.CancelJob(id)
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, sw.ScheduleKind)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.cancelLocked(id)
	if job.cronSchedule != nil {
		job.entryID = s.cron.Schedule(job.cronSchedule, cron.FuncJob(func() { s.fire(job) }))
	} else {
		job.timer = time.AfterFunc(job.next.Sub(now), func() { s.fire(job) })
	}
	s.jobs[id] = job
	s.mu.Unlock()

	s.logger.Info("job scheduled",
		"schedule_id", id,
		"device_id", sw.DeviceID,
		"kind", sw.ScheduleKind,
		"next_run", job.next.Format(time.RFC3339),
	)

	next := job.next
	if err := s.store.UpdateSchedule(ctx, id, ScheduleUpdate{NextRun: &next}); err != nil {
		s.logger.Warn("failed to persist next run", "schedule_id", id, "error", err)
	}
	return nil
}

// AddSchedule loads schedule id and its device from the store and installs its job.
func (s *Scheduler) AddSchedule(ctx context.Context, id string) error {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	dev, err := s.store.GetDevice(ctx, sched.DeviceID)
	if err != nil {
		return err
	}
	return s.ScheduleJob(ctx, ScheduleWithDevice{Schedule: *sched, Device: *dev})
}

// UpdateSchedule rebuilds the job for id from the current store record.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id string) error {
	s.CancelJob(id)
	return s.AddSchedule(ctx, id)
}

// EnableSchedule marks id enabled and installs its job.
func (s *Scheduler) EnableSchedule(ctx context.Context, id string) error {
	enabled := true
	if err := s.store.UpdateSchedule(ctx, id, ScheduleUpdate{Enabled: &enabled}); err != nil {
		return err
	}
	return s.AddSchedule(ctx, id)
}

// DisableSchedule cancels id's job and marks it disabled.
func (s *Scheduler) DisableSchedule(ctx context.Context, id string) error {
	s.CancelJob(id)
	enabled := false
	return s.store.UpdateSchedule(ctx, id, ScheduleUpdate{Enabled: &enabled})
}

// CancelJob removes id's Active Job. An execution already in flight still
// completes and is logged. Reports whether a job existed.
func (s *Scheduler) CancelJob(id string) bool {
	s.mu.Lock()
	cancelled := s.cancelLocked(id)
	s.mu.Unlock()

	if cancelled {
		s.logger.Info("job cancelled", "schedule_id", id)
	}
	return cancelled
}

func (s *Scheduler) cancelLocked(id string) bool {
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if job.timer != nil {
		job.timer.Stop()
	}
	if job.entryID != 0 {
		s.cron.Remove(job.entryID)
	}
	delete(s.jobs, id)
	return true
}

// GetNextRun returns the next fire time of id's Active Job, or nil if it has none.
func (s *Scheduler) GetNextRun(id string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	next := job.next
	return &next
}

// ActiveJobs returns the schedule IDs with an Active Job, sorted.
func (s *Scheduler) ActiveJobs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// ActiveJobCount returns the number of Active Jobs.
func (s *Scheduler) ActiveJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// DeviceRemoved cancels every job targeting deviceID and tears down its links.
func (s *Scheduler) DeviceRemoved(deviceID string) {
	cancelled := s.cancelDeviceJobs(deviceID)
	s.links.Disconnect(deviceID)
	s.logger.Info("device removed", "device_id", deviceID, "jobs_cancelled", cancelled)
}

// DeviceUpdated tears down deviceID's links and rebuilds its jobs from the
// store so they pick up a new address or enabled flag.
func (s *Scheduler) DeviceUpdated(ctx context.Context, deviceID string) error {
	s.cancelDeviceJobs(deviceID)
	s.links.Disconnect(deviceID)

	schedules, err := s.store.GetEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	var errs []error
	for _, sw := range schedules {
		if sw.DeviceID != deviceID {
			continue
		}
		if err := s.ScheduleJob(ctx, sw); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", sw.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) cancelDeviceJobs(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, job := range s.jobs {
		if job.device.ID == deviceID {
			s.cancelLocked(id)
			n++
		}
	}
	return n
}

// RunNow executes schedule id once, immediately, bypassing its Active Job.
// Unknown schedule or device IDs fail without writing a log.
func (s *Scheduler) RunNow(ctx context.Context, id string) devicelink.Result {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return devicelink.Failure("", "Scheduler stopped")
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	sched, err := s.store.GetSchedule(ctx, id)
	if errors.Is(err, ErrScheduleNotFound) {
		return devicelink.Failure("", "Schedule not found")
	}
	if err != nil {
		return devicelink.Failure("", fmt.Sprintf("Failed to load schedule: %v", err))
	}

	dev, err := s.store.GetDevice(ctx, sched.DeviceID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return devicelink.Failure("", "Device not found")
	}
	if err != nil {
		return devicelink.Failure("", fmt.Sprintf("Failed to load device: %v", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runNowTimeout)
	defer cancel()

	return s.execute(runCtx, *sched, *dev, TriggerManual)
}

// Subscribe registers fn to receive every Execution after it is logged.
// The returned function unsubscribes. fn must not block.
func (s *Scheduler) Subscribe(fn func(Execution)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// StopAll cancels every Active Job, disconnects every link, and waits for
// in-flight executions to finish logging. The Scheduler cannot be restarted.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id := range s.jobs {
		s.cancelLocked(id)
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.links.DisconnectAll()
	s.inflight.Wait()
	<-cronDone.Done()

	s.logger.Info("scheduler stopped")
}

// fire runs on the timer or cron goroutine when job is due.
func (s *Scheduler) fire(job *activeJob) {
	id := job.schedule.ID

	s.mu.Lock()
	if s.stopped || s.jobs[id] != job {
		s.mu.Unlock()
		return
	}
	if job.schedule.ScheduleKind == ScheduleOnce {
		delete(s.jobs, id)
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.execute(context.Background(), job.schedule, job.device, TriggerScheduled)
}

// execute is the pipeline shared by timed and manual runs: send, log,
// update run state, notify subscribers.
func (s *Scheduler) execute(ctx context.Context, sched Schedule, dev device.Device, trigger Trigger) devicelink.Result {
	start := time.Now()
	firedAt := s.now()
	result := s.dispatch(ctx, sched, dev)
	duration := time.Since(start)
	executedAt := s.now()

	status := StatusSuccess
	if !result.Success {
		status = StatusError
	}

	scheduleID := sched.ID
	entry := CommandLog{
		ID:         GenerateID(),
		ScheduleID: &scheduleID,
		DeviceID:   dev.ID,
		Command:    result.Command,
		Status:     status,
		Response:   result.Message,
		ExecutedAt: executedAt.UTC(),
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	if err := s.store.CreateLog(storeCtx, &entry); err != nil {
		s.logger.Error("failed to write command log", "schedule_id", sched.ID, "error", err)
	}

	update := ScheduleUpdate{LastRun: &executedAt}
	switch sched.ScheduleKind {
	case ScheduleOnce:
		disabled := false
		update.Enabled = &disabled
	case ScheduleRecurring:
		if next, ok := s.advance(sched, firedAt); ok {
			update.NextRun = &next
		}
	}
	if err := s.store.UpdateSchedule(storeCtx, sched.ID, update); err != nil {
		s.logger.Warn("failed to update schedule run state", "schedule_id", sched.ID, "error", err)
	}

	logFn := s.logger.Info
	if !result.Success {
		logFn = s.logger.Warn
	}
	logFn("schedule executed",
		"schedule_id", sched.ID,
		"device_id", dev.ID,
		"command", result.Command,
		"status", status,
		"message", result.Message,
		"trigger", trigger,
		"duration_ms", duration.Milliseconds(),
	)

	s.publish(Execution{
		Log:         entry,
		CommandKind: sched.CommandKind,
		Trigger:     trigger,
		Duration:    duration,
	})
	return result
}

// dispatch decodes the payload and sends the command. Panics and decode
// failures become failure Results.
func (s *Scheduler) dispatch(ctx context.Context, sched Schedule, dev device.Device) (result devicelink.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked", "schedule_id", sched.ID, "panic", r)
			result = devicelink.Failure(fallbackCommand(sched.CommandKind), fmt.Sprintf("Command failed: %v", r))
		}
	}()

	addr := dev.Address()

	switch sched.CommandKind {
	case CommandTake:
		takeID, err := DecodeTake(sched.CommandPayload)
		if err != nil {
			return invalidCommand(sched.CommandKind, err)
		}
		return s.links.Take(ctx, addr, takeID)

	case CommandRoute:
		source, destination, err := DecodeRoute(sched.CommandPayload)
		if err != nil {
			return invalidCommand(sched.CommandKind, err)
		}
		return s.links.Route(ctx, addr, source, destination)

	default:
		return invalidCommand(sched.CommandKind,
			fmt.Errorf("%w: unknown command kind %q", ErrInvalidCommand, sched.CommandKind))
	}
}

func invalidCommand(kind CommandKind, err error) devicelink.Result {
	detail := strings.TrimPrefix(err.Error(), ErrInvalidCommand.Error()+": ")
	return devicelink.Failure(fallbackCommand(kind), "Invalid command data: "+detail)
}

// advance returns the next fire time of a recurring schedule that fired at
// firedAt and records it on the Active Job, if one exists. A running cron
// entry's own next invocation wins.
func (s *Scheduler) advance(sched Schedule, firedAt time.Time) (time.Time, bool) {
	s.mu.Lock()
	job, ok := s.jobs[sched.ID]
	s.mu.Unlock()

	if ok && job.cronSchedule != nil {
		next := job.cronSchedule.Next(firedAt.In(s.loc))
		// The cron entry only carries a next time once the runner is started.
		if job.entryID != 0 {
			if e := s.cron.Entry(job.entryID); !e.Next.IsZero() {
				next = e.Next
			}
		}
		s.mu.Lock()
		job.next = next
		s.mu.Unlock()
		return next, true
	}

	cs, err := ParseCron(sched.CronExpression)
	if err != nil {
		return time.Time{}, false
	}
	return cs.Next(firedAt.In(s.loc)), true
}

func (s *Scheduler) publish(ev Execution) {
	s.subsMu.RLock()
	subs := make([]func(Execution), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("execution subscriber panicked", "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
