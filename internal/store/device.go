package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/tilly/internal/model"
)

type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

const deviceCols = `id, user_id, endpoint, p256dh_key, auth_key, device_name, enabled, created_at`

func scanDevice(scanner interface{ Scan(...any) error }) (*model.PushDevice, error) {
	var d model.PushDevice
	var enabled int
	err := scanner.Scan(
		&d.ID, &d.UserID, &d.Endpoint, &d.P256dhKey, &d.AuthKey,
		&d.DeviceName, &enabled, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Enabled = enabled != 0
	return &d, nil
}

// Upsert registers a device by its unique endpoint, refreshing keys and
// name when the endpoint is already known.
func (s *DeviceStore) Upsert(userID, endpoint, p256dh, auth, deviceName string) (*model.PushDevice, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_devices (user_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key,
		   device_name = excluded.device_name`,
		userID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert push device: %w", err)
	}
	return s.GetByEndpoint(endpoint)
}

func (s *DeviceStore) GetByEndpoint(endpoint string) (*model.PushDevice, error) {
	row := s.db.QueryRow(`SELECT `+deviceCols+` FROM push_devices WHERE endpoint = ?`, endpoint)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push device by endpoint: %w", err)
	}
	return d, nil
}

func (s *DeviceStore) ListByUser(userID string) ([]model.PushDevice, error) {
	rows, err := s.db.Query(
		`SELECT `+deviceCols+` FROM push_devices WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push devices: %w", err)
	}
	defer rows.Close()
	return collectDevices(rows)
}

// ListEnabled returns the user's enabled devices only; these are the
// fan-out targets for the daily digest.
func (s *DeviceStore) ListEnabled(userID string) ([]model.PushDevice, error) {
	rows, err := s.db.Query(
		`SELECT `+deviceCols+` FROM push_devices WHERE user_id = ? AND enabled = 1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled push devices: %w", err)
	}
	defer rows.Close()
	return collectDevices(rows)
}

// SetEnabled toggles a device without removing its registration.
func (s *DeviceStore) SetEnabled(id int64, userID string, enabled bool) error {
	var e int
	if enabled {
		e = 1
	}
	_, err := s.db.Exec(
		`UPDATE push_devices SET enabled = ? WHERE id = ? AND user_id = ?`,
		e, id, userID,
	)
	if err != nil {
		return fmt.Errorf("set push device enabled: %w", err)
	}
	return nil
}

func (s *DeviceStore) Delete(id int64, userID string) error {
	_, err := s.db.Exec(`DELETE FROM push_devices WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete push device: %w", err)
	}
	return nil
}

func collectDevices(rows *sql.Rows) ([]model.PushDevice, error) {
	var devices []model.PushDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}
