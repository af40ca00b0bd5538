// Package maintenance runs the scheduled housekeeping jobs of the compute
// backend.
//
// Two jobs are registered on a [Scheduler]:
//
//   - cleanup deletes request_logs and service_metrics rows older than the
//     retention window (CleanupSchedule, "@daily" by default).
//   - snapshot records requests.total, requests.success_rate and
//     latency.avg_ms into service_metrics (SnapshotSchedule, "@every 1m"
//     by default).
//
// Schedules are standard 5-field cron expressions or descriptors such as
// "@every 30s". An empty schedule disables the job. A failing run is
// logged and the job fires again at its next scheduled time.
package maintenance
