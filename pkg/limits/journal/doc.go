// Package journal records periodic usage snapshots of a quota repository
// to SQLite.
//
// Rows are only ever appended and pruned. Nothing reads them back into the
// engine, so quota state still starts from zero after a restart; the
// journal exists for offline capacity planning.
//
// Two drivers are supported: the pure Go modernc.org/sqlite ("sqlite", the
// default) and the cgo github.com/mattn/go-sqlite3 ("sqlite3").
//
// # Usage
//
//	j, err := journal.Open(journal.Config{Path: "quota.db"})
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//
//	sched := journal.NewScheduler(j, repo, journal.SchedulerConfig{
//	    Schedule:  "@every 1m",
//	    Retention: 7 * 24 * time.Hour,
//	}, logger)
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
package journal
