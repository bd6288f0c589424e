package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence for cameras and gates.
// The Registry is the only caller; it owns caching and concurrency.
type Repository interface {
	// ListCameras returns every camera ordered by name.
	ListCameras(ctx context.Context) ([]Camera, error)

	// GetCamera returns ErrNotFound if the camera does not exist.
	GetCamera(ctx context.Context, id string) (*Camera, error)

	// CreateCamera returns ErrDuplicateName if the name is taken.
	CreateCamera(ctx context.Context, c *Camera) error

	// UpdateCamera writes the caller-editable camera fields.
	UpdateCamera(ctx context.Context, c *Camera) error

	// DeleteCamera returns ErrReference while a gate still links the camera.
	DeleteCamera(ctx context.Context, id string) error

	// UpdateCameraStatus writes the probe-owned camera fields.
	UpdateCameraStatus(ctx context.Context, id string, status CameraStatus, checkedAt time.Time) error

	// ListGates returns every gate ordered by name.
	ListGates(ctx context.Context) ([]Gate, error)

	// GetGate returns ErrNotFound if the gate does not exist.
	GetGate(ctx context.Context, id string) (*Gate, error)

	// CreateGate returns ErrDuplicateName if the name is taken and
	// ErrReference if camera_id does not exist.
	CreateGate(ctx context.Context, g *Gate) error

	// UpdateGate writes the caller-editable gate fields.
	UpdateGate(ctx context.Context, g *Gate) error

	// DeleteGate removes a gate.
	DeleteGate(ctx context.Context, id string) error

	// UpdateGateState writes the actuator and probe owned gate fields.
	UpdateGateState(ctx context.Context, g *Gate) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const cameraColumns = `id, name, location, ip_address, port, username, password,
	snapshot_url, status, last_checked, created_at, updated_at`

const gateColumns = `id, name, location, controller_ip, controller_port, gate_type,
	camera_id, status, is_online, control_method, open_command, close_command,
	last_action, status_updated_at, last_checked, created_at, updated_at`

// ListCameras returns every camera ordered by name.
func (r *SQLiteRepository) ListCameras(ctx context.Context) ([]Camera, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying cameras: %w", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning camera: %w", err)
		}
		cameras = append(cameras, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cameras: %w", err)
	}
	return cameras, nil
}

// GetCamera retrieves a camera by ID.
func (r *SQLiteRepository) GetCamera(ctx context.Context, id string) (*Camera, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = ?`, id)
	c, err := scanCamera(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying camera by id: %w", err)
	}
	return c, nil
}

// CreateCamera inserts a new camera.
func (r *SQLiteRepository) CreateCamera(ctx context.Context, c *Camera) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cameras (`+cameraColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Location, c.IPAddress, c.Port, c.Username, c.Password,
		c.SnapshotURL, string(c.Status), nullableTime(c.LastChecked),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting camera: %w", err)
	}
	return nil
}

// UpdateCamera writes the caller-editable camera fields.
func (r *SQLiteRepository) UpdateCamera(ctx context.Context, c *Camera) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cameras SET
			name = ?, location = ?, ip_address = ?, port = ?, username = ?,
			password = ?, snapshot_url = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Location, c.IPAddress, c.Port, c.Username,
		c.Password, c.SnapshotURL, formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("updating camera: %w", err)
	}
	return expectOneRow(result)
}

// DeleteCamera removes a camera.
func (r *SQLiteRepository) DeleteCamera(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: camera %s is linked to a gate", ErrReference, id)
		}
		return fmt.Errorf("deleting camera: %w", err)
	}
	return expectOneRow(result)
}

// UpdateCameraStatus writes the probe-owned camera fields.
func (r *SQLiteRepository) UpdateCameraStatus(ctx context.Context, id string, status CameraStatus, checkedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE cameras SET status = ?, last_checked = ? WHERE id = ?`,
		string(status), formatTime(checkedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating camera status: %w", err)
	}
	return expectOneRow(result)
}

// ListGates returns every gate ordered by name.
func (r *SQLiteRepository) ListGates(ctx context.Context) ([]Gate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+gateColumns+` FROM gates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying gates: %w", err)
	}
	defer rows.Close()

	var gates []Gate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gate: %w", err)
		}
		gates = append(gates, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gates: %w", err)
	}
	return gates, nil
}

// GetGate retrieves a gate by ID.
func (r *SQLiteRepository) GetGate(ctx context.Context, id string) (*Gate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gateColumns+` FROM gates WHERE id = ?`, id)
	g, err := scanGate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying gate by id: %w", err)
	}
	return g, nil
}

// CreateGate inserts a new gate.
func (r *SQLiteRepository) CreateGate(ctx context.Context, g *Gate) error {
	lastAction, err := marshalLastAction(g.LastAction)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO gates (`+gateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Location, g.ControllerIP, g.ControllerPort, string(g.GateType),
		nullableString(g.CameraID), string(g.Status), boolToInt(g.IsOnline),
		string(g.ControlMethod), g.OpenCommand, g.CloseCommand,
		lastAction, nullableTime(g.StatusUpdatedAt), nullableTime(g.LastChecked),
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return ErrDuplicateName
		case isForeignKeyError(err):
			return fmt.Errorf("%w: camera %s does not exist", ErrReference, derefString(g.CameraID))
		}
		return fmt.Errorf("inserting gate: %w", err)
	}
	return nil
}

// UpdateGate writes the caller-editable gate fields.
func (r *SQLiteRepository) UpdateGate(ctx context.Context, g *Gate) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE gates SET
			name = ?, location = ?, controller_ip = ?, controller_port = ?,
			gate_type = ?, camera_id = ?, control_method = ?, open_command = ?,
			close_command = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.Location, g.ControllerIP, g.ControllerPort,
		string(g.GateType), nullableString(g.CameraID), string(g.ControlMethod), g.OpenCommand,
		g.CloseCommand, formatTime(g.UpdatedAt),
		g.ID,
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return ErrDuplicateName
		case isForeignKeyError(err):
			return fmt.Errorf("%w: camera %s does not exist", ErrReference, derefString(g.CameraID))
		}
		return fmt.Errorf("updating gate: %w", err)
	}
	return expectOneRow(result)
}

// DeleteGate removes a gate.
func (r *SQLiteRepository) DeleteGate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM gates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gate: %w", err)
	}
	return expectOneRow(result)
}

// UpdateGateState writes the actuator and probe owned gate fields.
func (r *SQLiteRepository) UpdateGateState(ctx context.Context, g *Gate) error {
	lastAction, err := marshalLastAction(g.LastAction)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE gates SET
			status = ?, is_online = ?, last_action = ?, status_updated_at = ?, last_checked = ?
		WHERE id = ?`,
		string(g.Status), boolToInt(g.IsOnline), lastAction,
		nullableTime(g.StatusUpdatedAt), nullableTime(g.LastChecked),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating gate state: %w", err)
	}
	return expectOneRow(result)
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(scanner rowScanner) (*Camera, error) {
	var c Camera
	var status string
	var lastChecked sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&c.ID, &c.Name, &c.Location, &c.IPAddress, &c.Port, &c.Username, &c.Password,
		&c.SnapshotURL, &status, &lastChecked, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c.Status = CameraStatus(status)
	c.LastChecked = parseNullableTime(lastChecked)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func scanGate(scanner rowScanner) (*Gate, error) {
	var g Gate
	var gateType, status, controlMethod string
	var cameraID, lastAction, statusUpdatedAt, lastChecked sql.NullString
	var isOnline int
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&g.ID, &g.Name, &g.Location, &g.ControllerIP, &g.ControllerPort, &gateType,
		&cameraID, &status, &isOnline, &controlMethod, &g.OpenCommand, &g.CloseCommand,
		&lastAction, &statusUpdatedAt, &lastChecked, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	g.GateType = GateType(gateType)
	g.Status = GateStatus(status)
	g.ControlMethod = ControlMethod(controlMethod)
	g.IsOnline = isOnline != 0
	if cameraID.Valid {
		g.CameraID = &cameraID.String
	}
	g.StatusUpdatedAt = parseNullableTime(statusUpdatedAt)
	g.LastChecked = parseNullableTime(lastChecked)

	if lastAction.Valid && lastAction.String != "" {
		var la LastAction
		if err := json.Unmarshal([]byte(lastAction.String), &la); err != nil {
			return nil, fmt.Errorf("unmarshalling last_action: %w", err)
		}
		g.LastAction = &la
	}

	var err error
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &g, nil
}

func marshalLastAction(la *LastAction) (sql.NullString, error) {
	if la == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(la)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling last_action: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Timestamps are stored with nanosecond precision so the probe/actuation
// ordering survives a restart.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
