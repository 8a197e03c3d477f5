// Package scheduler turns schedule records into timed device commands.
//
// Each enabled schedule has at most one Active Job: a cron entry for
// recurring schedules, or a single-shot timer for once schedules. When a
// job fires, the command payload is decoded, sent through DeviceLinks, and
// the outcome is appended to the command log before run state (last_run,
// next_run, enabled) is updated and subscribers are notified.
//
// # Usage
//
//	store := scheduler.NewSQLiteStore(db.DB)
//	sched := scheduler.New(store, links, scheduler.Options{
//	    Location: loc,
//	    Logger:   log.Component("scheduler"),
//	})
//	unsubscribe := sched.Subscribe(func(ev scheduler.Execution) {
//	    // publish ev.Log
//	})
//	defer unsubscribe()
//
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.StopAll()
//
//	result := sched.RunNow(ctx, scheduleID)
//
// Link failures never escape as errors. Every execution attempt, including
// one with an undecodable payload, writes exactly one CommandLog row. A once
// schedule whose run time passed before it was loaded never fires.
package scheduler
