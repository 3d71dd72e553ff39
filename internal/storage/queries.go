package storage

const (
	createExportJob = `
INSERT INTO export_jobs (id, title, sheet_name, strategy, rows_json, total_interest, total_months, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	getExportJob = `
SELECT id, title, sheet_name, strategy, rows_json, total_interest, total_months,
       status, sheet_ref, last_error, attempts, version, created_at, synced_at
FROM export_jobs
WHERE id = ?`

	getPendingExportJobs = `
SELECT id, version, created_at
FROM export_jobs
WHERE status = 'pending' OR (status = 'error' AND attempts < ?)
ORDER BY created_at ASC
LIMIT ?`

	markExportJobSynced = `
UPDATE export_jobs
SET status = 'synced', sheet_ref = ?, last_error = '', synced_at = ?, version = version + 1
WHERE id = ?`

	markExportJobError = `
UPDATE export_jobs
SET status = 'error', last_error = ?, attempts = attempts + 1, version = version + 1
WHERE id = ?`

	deleteSyncedExportJobs = `
DELETE FROM export_jobs
WHERE status = 'synced' AND synced_at < ?`

	countExportJobsByStatus = `
SELECT status, COUNT(*)
FROM export_jobs
GROUP BY status`
)
