package telemetry

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

// CSVHeader is the column order of exported telemetry.
var CSVHeader = []string{
	"timestamp",
	"local_temp_c",
	"local_humidity_percent",
	"local_pressure_hpa",
	"local_light_lux",
	"hub_temp_c",
	"hub_humidity_percent",
	"hub_light_level",
	"tuya_curtain_percent",
}

// CSVTimeLayout formats the timestamp column in local time.
const CSVTimeLayout = "2006-01-02 15:04:05"

// Repository defines the telemetry trail operations.
type Repository interface {
	Append(ctx context.Context, t state.Telemetry) error
	List(ctx context.Context, since time.Time, limit int) ([]state.Telemetry, error)
}

// SQLiteRepository stores snapshots in the telemetry table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts one snapshot. Nil fields are stored as NULL.
func (r *SQLiteRepository) Append(ctx context.Context, t state.Telemetry) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO telemetry (created_at, local_temp_c, local_humidity_percent, local_pressure_hpa,
		    local_light_lux, hub_temp_c, hub_humidity_percent, hub_light_level, tuya_curtain_percent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339),
		nullFloat(t.LocalTempC), nullFloat(t.LocalHumidityPercent), nullFloat(t.LocalPressureHPa),
		nullFloat(t.LocalLightLux), nullFloat(t.HubTempC), nullFloat(t.HubHumidityPercent),
		nullFloat(t.HubLightLevel), nullInt(t.CurtainPercent),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}
	return nil
}

// List returns snapshots taken at or after since, oldest first. limit <= 0
// means no limit.
func (r *SQLiteRepository) List(ctx context.Context, since time.Time, limit int) ([]state.Telemetry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT created_at, local_temp_c, local_humidity_percent, local_pressure_hpa, local_light_lux,
		        hub_temp_c, hub_humidity_percent, hub_light_level, tuya_curtain_percent
		 FROM telemetry WHERE created_at >= ? ORDER BY id LIMIT ?`,
		since.UTC().Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	out := []state.Telemetry{}
	for rows.Next() {
		var createdAt string
		var lt, lh, lp, ll, ht, hh, hl sql.NullFloat64
		var curtain sql.NullInt64
		if err := rows.Scan(&createdAt, &lt, &lh, &lp, &ll, &ht, &hh, &hl, &curtain); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing telemetry timestamp %q: %w", createdAt, err)
		}
		t := state.Telemetry{
			Timestamp:            ts,
			LocalTempC:           floatPtr(lt),
			LocalHumidityPercent: floatPtr(lh),
			LocalPressureHPa:     floatPtr(lp),
			LocalLightLux:        floatPtr(ll),
			HubTempC:             floatPtr(ht),
			HubHumidityPercent:   floatPtr(hh),
			HubLightLevel:        floatPtr(hl),
		}
		if curtain.Valid {
			v := int(curtain.Int64)
			t.CurtainPercent = &v
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}
	return out, nil
}

// WriteCSV writes rows with a header. Missing values are empty cells.
func WriteCSV(w io.Writer, rows []state.Telemetry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range rows {
		if err := cw.Write(CSVRecord(t)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVRecord renders one snapshot in CSVHeader order. Local readings have
// two decimals; hub light level and curtain percent are written as is.
func CSVRecord(t state.Telemetry) []string {
	return []string{
		t.Timestamp.Local().Format(CSVTimeLayout),
		fixed2(t.LocalTempC),
		fixed2(t.LocalHumidityPercent),
		fixed2(t.LocalPressureHPa),
		fixed2(t.LocalLightLux),
		fixed2(t.HubTempC),
		fixed2(t.HubHumidityPercent),
		plain(t.HubLightLevel),
		intCell(t.CurtainPercent),
	}
}

func fixed2(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func plain(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
