package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older builds may use plain RFC3339.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// Pinned device operations

// SetPinned pins or unpins a device by identifier.
func (s *Store) SetPinned(deviceID string, pinned bool) error {
	if !pinned {
		if _, err := s.db.Exec(`DELETE FROM pinned_devices WHERE device_id = ?`, deviceID); err != nil {
			return wrapErr(err, "failed to unpin device %s", deviceID)
		}
		return nil
	}

	query := `
		INSERT OR REPLACE INTO pinned_devices (device_id, pinned_at)
		VALUES (?, ?)
	`
	if _, err := s.db.Exec(query, deviceID, formatTime(time.Now())); err != nil {
		return wrapErr(err, "failed to pin device %s", deviceID)
	}
	return nil
}

// PinnedDevices returns the set of pinned device identifiers.
func (s *Store) PinnedDevices() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT device_id FROM pinned_devices ORDER BY device_id`)
	if err != nil {
		return nil, wrapErr(err, "failed to list pinned devices")
	}
	defer rows.Close()

	pinned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pinned device row: %w", err)
		}
		pinned[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pinned devices: %w", err)
	}

	return pinned, nil
}

// Snapshot display name operations

// SetSnapshotName stores a display-name override for a snapshot. An empty
// name clears the override.
func (s *Store) SetSnapshotName(snapshotID, name string) error {
	if name == "" {
		return s.DeleteSnapshotName(snapshotID)
	}

	query := `
		INSERT OR REPLACE INTO snapshot_names (snapshot_id, display_name, updated_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.Exec(query, snapshotID, name, formatTime(time.Now())); err != nil {
		return wrapErr(err, "failed to rename snapshot %s", snapshotID)
	}
	return nil
}

// DeleteSnapshotName removes a display-name override. Missing rows are not
// an error.
func (s *Store) DeleteSnapshotName(snapshotID string) error {
	if _, err := s.db.Exec(`DELETE FROM snapshot_names WHERE snapshot_id = ?`, snapshotID); err != nil {
		return wrapErr(err, "failed to clear snapshot name %s", snapshotID)
	}
	return nil
}

// SnapshotName returns the display-name override for a snapshot, or "".
func (s *Store) SnapshotName(snapshotID string) (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT display_name FROM snapshot_names WHERE snapshot_id = ?`, snapshotID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapErr(err, "failed to get snapshot name %s", snapshotID)
	}
	return name, nil
}

// SnapshotNames returns every display-name override keyed by snapshot ID.
func (s *Store) SnapshotNames() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT snapshot_id, display_name FROM snapshot_names`)
	if err != nil {
		return nil, wrapErr(err, "failed to list snapshot names")
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot name row: %w", err)
		}
		names[id] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot names: %w", err)
	}

	return names, nil
}

// Push history operations

// InsertPushRecord appends a push notification attempt and returns its ID.
func (s *Store) InsertPushRecord(rec *PushRecord) (int64, error) {
	query := `
		INSERT INTO push_history (device_id, bundle_id, payload, success, output, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	result, err := s.db.Exec(query,
		rec.DeviceID,
		rec.BundleID,
		rec.Payload,
		rec.Success,
		rec.Output,
		formatTime(sentAt),
	)
	if err != nil {
		return 0, wrapErr(err, "failed to insert push record for %s", rec.BundleID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get push record ID: %w", err)
	}

	return id, nil
}

// ListPushHistory returns the push history for a (device, application) pair,
// newest first. limit <= 0 returns every record.
func (s *Store) ListPushHistory(deviceID, bundleID string, limit int) ([]*PushRecord, error) {
	query := `
		SELECT id, device_id, bundle_id, payload, success, output, sent_at
		FROM push_history
		WHERE device_id = ? AND bundle_id = ?
		ORDER BY sent_at DESC, id DESC
	`
	args := []any{deviceID, bundleID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr(err, "failed to list push history for %s", bundleID)
	}
	defer rows.Close()

	var records []*PushRecord
	for rows.Next() {
		var rec PushRecord
		var sentAt string
		var payload, output sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.DeviceID,
			&rec.BundleID,
			&payload,
			&rec.Success,
			&output,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan push record row: %w", err)
		}
		rec.Payload = payload.String
		rec.Output = output.String

		rec.SentAt, err = parseTime(sentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sent_at for push record %d: %w", rec.ID, err)
		}

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push history: %w", err)
	}

	return records, nil
}
