package autocorr

import (
	"log"
	"os"
	"time"
)

// Portnumbers structs can contain all TCP port numbers used by the server.
type Portnumbers struct {
	RPC    int // JSON-RPC control
	Status int // ZMQ PUB of status messages
	Trace  int // ZMQ PUB of trace data
}

// Ports globally holds all TCP port numbers used by the server.
var Ports Portnumbers

func setPortnumbers(base int) {
	Ports.RPC = base
	Ports.Status = base + 1
	Ports.Trace = base + 2
}

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Summary string
	Host    string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.1.0",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// ServerStartTime is a global holding the time init() was run
var ServerStartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

// UpdateLogger will log client updates to a file
var UpdateLogger *log.Logger

func init() {
	setPortnumbers(4700)
	ServerStartTime = time.Now()

	// The main program will override these, but at least initialize with
	// sensible values.
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stderr, "", log.LstdFlags)
}
