// Package corrdb records server activity and saved measurements in a
// ClickHouse database. All recording is best-effort: a missing or broken
// database never blocks data taking.
package corrdb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "autocorr" // official SQL name of the database

// Connection wraps one ClickHouse connection plus the channels that feed it.
type Connection struct {
	conn          clickhouse.Conn
	err           error
	activityEntry *ActivityMessage
	measuremsg    chan *MeasurementMessage
	sync.WaitGroup
}

// IsConnected tells whether the connection is usable.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer opens a throwaway connection and checks the server responds.
func PingServer() error {
	db := createConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	db.conn.Close()
	return nil
}

// StartConnection opens the database, records the activity entry, and starts
// the goroutine that drains recording messages until abort closes.
func StartConnection(activity *ActivityMessage, abort <-chan struct{}) *Connection {
	db := createConnection()
	db.activityEntry = activity
	db.logActivity()
	go db.handleConnection(abort)
	return db
}

// DummyConnection returns a Connection that records nothing. Its WaitGroup
// still works, so callers can treat it like a live one.
func DummyConnection() *Connection {
	db := &Connection{}
	db.Add(1)
	return db
}

func createConnection() *Connection {
	db := &Connection{}
	dbUser := os.Getenv("AUTOCORR_DB_USER")
	dbPass := os.Getenv("AUTOCORR_DB_PASSWORD")
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: dbUser,
		Password: dbPass,
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "autocorr", Version: "unknown"},
		},
	}
	opt := clickhouse.Options{
		Addr:       []string{"localhost:9000"},
		Auth:       auth,
		ClientInfo: client,
		TLS:        nil,
	}
	ctx := context.Background()
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn
	db.Add(1)

	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}

	db.measuremsg = make(chan *MeasurementMessage)
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	ae := db.activityEntry
	formattedStart := ae.Start.Format("2006-01-02 15:04:05.000000")
	formattedEnd := ae.End.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO autocorractivity VALUES (?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into autocorractivity ", err)
		db.err = err
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case mmsg := <-db.measuremsg:
			db.handleMeasurementMessage(mmsg)
		}
	}
}

// Disconnect closes out the activity entry. The connection itself is left to
// the driver's pooling.
func (db *Connection) Disconnect() {
	if db.IsConnected() {
		db.activityEntry.End = time.Now()
		db.logActivity()
	}
}

// RecordMeasurement stores a saved measurement in the DB (if it's open).
// The send is handed to a goroutine so a stalled database cannot stall the
// saver.
func (db *Connection) RecordMeasurement(msg *MeasurementMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go func() { db.measuremsg <- msg }()
}

func (db *Connection) handleMeasurementMessage(m *MeasurementMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedSaved := m.Saved.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO measurements VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, db.activityEntry.ID, m.Label, m.Filename,
		m.CountLength, m.BinWidthPS, m.RefreshTime, m.NBins, formattedSaved,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into measurements ", err)
		db.err = err
	}
}
