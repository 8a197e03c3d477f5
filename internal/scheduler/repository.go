package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/nerrad567/gray-logic-playout/internal/device"
)

// Store is the persistence the Scheduler needs.
type Store interface {
	// GetEnabledSchedules returns every enabled schedule whose device is
	// also enabled, joined with the device's current address.
	GetEnabledSchedules(ctx context.Context) ([]ScheduleWithDevice, error)

	// GetSchedule returns ErrScheduleNotFound for unknown IDs.
	GetSchedule(ctx context.Context, id string) (*Schedule, error)

	// GetDevice returns device.ErrDeviceNotFound for unknown IDs.
	GetDevice(ctx context.Context, id string) (*device.Device, error)

	// UpdateSchedule applies the non-nil fields of update.
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error

	// CreateLog appends entry, assigning ID and ExecutedAt if unset.
	CreateLog(ctx context.Context, entry *CommandLog) error
}

// LogFilter narrows ListLogs. Zero fields match everything.
type LogFilter struct {
	ScheduleID string
	DeviceID   string
	Limit      int
}

const defaultLogLimit = 100

const selectScheduleColumns = `
	SELECT s.id, s.device_id, s.name, s.command_kind, s.command_payload,
		s.schedule_kind, s.cron_expression, s.run_at, s.enabled,
		s.last_run, s.next_run, s.created_at, s.updated_at`

// SQLiteStore implements Store, plus the schedule CRUD and log queries
// used by the command line, on SQLite.
type SQLiteStore struct {
	db      *sql.DB
	devices *device.SQLiteRepository
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store on an open database that has the
// devices, schedules and command_logs tables.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, devices: device.NewSQLiteRepository(db)}
}

// GetEnabledSchedules returns enabled schedules on enabled devices.
func (r *SQLiteStore) GetEnabledSchedules(ctx context.Context) ([]ScheduleWithDevice, error) {
	query := selectScheduleColumns + `,
			d.id, d.name, d.kind, d.host, d.port, d.enabled, d.created_at, d.updated_at
		FROM schedules s
		JOIN devices d ON d.id = s.device_id
		WHERE s.enabled = 1 AND d.enabled = 1
		ORDER BY s.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying enabled schedules: %w", err)
	}
	defer rows.Close()

	var out []ScheduleWithDevice
	for rows.Next() {
		var dev deviceColumns
		s, err := scanSchedule(rows, dev.dest()...)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		out = append(out, ScheduleWithDevice{Schedule: *s, Device: dev.device()})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return out, nil
}

// GetSchedule retrieves a schedule by ID.
func (r *SQLiteStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx, selectScheduleColumns+` FROM schedules s WHERE s.id = ?`, id)

	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule by id: %w", err)
	}
	return s, nil
}

// GetDevice retrieves a device by ID.
func (r *SQLiteStore) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	return r.devices.GetByID(ctx, id)
}

// ListSchedules returns every schedule, optionally only those for deviceID.
func (r *SQLiteStore) ListSchedules(ctx context.Context, deviceID string) ([]Schedule, error) {
	query := selectScheduleColumns + ` FROM schedules s`
	var args []any
	if deviceID != "" {
		query += ` WHERE s.device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY s.name, s.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		out = append(out, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return out, nil
}

// CreateSchedule inserts a new schedule. Callers validate first.
func (r *SQLiteStore) CreateSchedule(ctx context.Context, s *Schedule) error {
	if s.ID == "" {
		s.ID = GenerateID()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO schedules (
			id, device_id, name, command_kind, command_payload,
			schedule_kind, cron_expression, run_at, enabled,
			last_run, next_run, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.DeviceID,
		s.Name,
		string(s.CommandKind),
		payloadString(s),
		string(s.ScheduleKind),
		nullableString(s.CronExpression),
		nullableTime(s.RunAt),
		boolToInt(s.Enabled),
		nullableTime(s.LastRun),
		nullableTime(s.NextRun),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrScheduleExists
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: device %s", device.ErrDeviceNotFound, s.DeviceID)
		}
		return fmt.Errorf("inserting schedule: %w", err)
	}
	return nil
}

// SaveSchedule replaces every user-owned field of an existing schedule.
// Run state (last_run, next_run) is left alone.
func (r *SQLiteStore) SaveSchedule(ctx context.Context, s *Schedule) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE schedules SET
			device_id = ?, name = ?, command_kind = ?, command_payload = ?,
			schedule_kind = ?, cron_expression = ?, run_at = ?, enabled = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.DeviceID,
		s.Name,
		string(s.CommandKind),
		payloadString(s),
		string(s.ScheduleKind),
		nullableString(s.CronExpression),
		nullableTime(s.RunAt),
		boolToInt(s.Enabled),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: device %s", device.ErrDeviceNotFound, s.DeviceID)
		}
		return fmt.Errorf("saving schedule: %w", err)
	}
	return checkAffected(result)
}

// UpdateSchedule applies a partial run-state update.
func (r *SQLiteStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	ub := squirrel.Update("schedules").Where(squirrel.Eq{"id": id})
	changed := false
	if update.Enabled != nil {
		ub = ub.Set("enabled", boolToInt(*update.Enabled))
		changed = true
	}
	if update.LastRun != nil {
		ub = ub.Set("last_run", nullableTime(update.LastRun))
		changed = true
	}
	if update.NextRun != nil {
		ub = ub.Set("next_run", nullableTime(update.NextRun))
		changed = true
	}
	if !changed {
		return nil
	}

	query, args, err := ub.Set("updated_at", time.Now().UTC().Format(time.RFC3339)).ToSql()
	if err != nil {
		return fmt.Errorf("building schedule update: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	return checkAffected(result)
}

// DeleteSchedule removes a schedule. Its logs are kept with a NULL schedule_id.
func (r *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return checkAffected(result)
}

// CreateLog appends a command log entry.
func (r *SQLiteStore) CreateLog(ctx context.Context, entry *CommandLog) error {
	if entry.ID == "" {
		entry.ID = GenerateID()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}

	var scheduleID sql.NullString
	if entry.ScheduleID != nil {
		scheduleID = sql.NullString{String: *entry.ScheduleID, Valid: true}
	}

	// A schedule deleted mid-execution stores NULL rather than failing the
	// foreign key, so the attempt is still logged.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO command_logs (id, schedule_id, device_id, command, status, response, executed_at)
		VALUES (?, (SELECT id FROM schedules WHERE id = ?), ?, ?, ?, ?, ?)`,
		entry.ID,
		scheduleID,
		entry.DeviceID,
		entry.Command,
		string(entry.Status),
		entry.Response,
		entry.ExecutedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// ListLogs returns the most recent log entries first.
func (r *SQLiteStore) ListLogs(ctx context.Context, filter LogFilter) ([]CommandLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	// rowid breaks ties between entries logged within the same second.
	sb := squirrel.Select("id", "schedule_id", "device_id", "command", "status", "response", "executed_at").
		From("command_logs").
		OrderBy("executed_at DESC", "rowid DESC").
		Limit(uint64(limit))
	if filter.ScheduleID != "" {
		sb = sb.Where(squirrel.Eq{"schedule_id": filter.ScheduleID})
	}
	if filter.DeviceID != "" {
		sb = sb.Where(squirrel.Eq{"device_id": filter.DeviceID})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building log query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	var logs []CommandLog
	for rows.Next() {
		var (
			l          CommandLog
			scheduleID sql.NullString
			status     string
			executedAt string
		)
		if err := rows.Scan(&l.ID, &scheduleID, &l.DeviceID, &l.Command, &status, &l.Response, &executedAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		if scheduleID.Valid {
			l.ScheduleID = &scheduleID.String
		}
		l.Status = Status(status)
		l.ExecutedAt, _ = time.Parse(time.RFC3339, executedAt) //nolint:errcheck // written by us in RFC3339
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}
	return logs, nil
}

// ─── Scanning ───────────────────────────────────────────────────────

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSchedule scans the schedule columns followed by any extra destinations.
func scanSchedule(scanner rowScanner, extra ...any) (*Schedule, error) {
	var (
		s                                  Schedule
		commandKind, scheduleKind, payload string
		cronExpr, runAt, lastRun, nextRun  sql.NullString
		enabled                            int
		createdAt, updatedAt               string
	)

	dest := []any{
		&s.ID, &s.DeviceID, &s.Name, &commandKind, &payload,
		&scheduleKind, &cronExpr, &runAt, &enabled,
		&lastRun, &nextRun, &createdAt, &updatedAt,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	s.CommandKind = CommandKind(commandKind)
	s.CommandPayload = []byte(payload)
	s.ScheduleKind = ScheduleKind(scheduleKind)
	s.CronExpression = cronExpr.String
	s.Enabled = enabled != 0
	s.RunAt = parseNullableTime(runAt)
	s.LastRun = parseNullableTime(lastRun)
	s.NextRun = parseNullableTime(nextRun)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by us in RFC3339
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by us in RFC3339

	return &s, nil
}

// deviceColumns receives the joined device columns of GetEnabledSchedules.
type deviceColumns struct {
	d                    device.Device
	kind                 string
	enabled              int
	createdAt, updatedAt string
}

func (c *deviceColumns) dest() []any {
	return []any{&c.d.ID, &c.d.Name, &c.kind, &c.d.Host, &c.d.Port, &c.enabled, &c.createdAt, &c.updatedAt}
}

func (c *deviceColumns) device() device.Device {
	d := c.d
	d.Kind = device.Kind(c.kind)
	d.Enabled = c.enabled != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339, c.createdAt) //nolint:errcheck // written by us in RFC3339
	d.UpdatedAt, _ = time.Parse(time.RFC3339, c.updatedAt) //nolint:errcheck // written by us in RFC3339
	return d
}

func payloadString(s *Schedule) string {
	if len(s.CommandPayload) == 0 {
		return "{}"
	}
	return string(s.CommandPayload)
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableString returns a sql.NullString, NULL for empty strings.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyError checks if an error is a SQLite foreign key violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
