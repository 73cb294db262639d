package corrdb

import "time"

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the autocorractivity table: one row
// per server session.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	Start     time.Time
	End       time.Time
}

// MeasurementMessage is the information required to make an entry in the
// measurements table: one row per saved trace.
type MeasurementMessage struct {
	ID          string // measurement ULID, assigned at Start
	Label       string
	Filename    string
	CountLength int
	BinWidthPS  float64
	RefreshTime float64 // seconds
	NBins       int
	Saved       time.Time
}
