package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/usnistgov/autocorr"
	"github.com/usnistgov/autocorr/internal/corrdb"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	// Create directory <path>, if needed
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		err2 := os.MkdirAll(dir, 0775)
		if err2 != nil {
			return "", err2
		}
	}

	// Create an empty file path/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("sim_mean_counts", 100.0)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotAutocorr := filepath.Join(HOME, ".autocorr")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotAutocorr, filename+suffix); err != nil {
		return err
	}
	viper.SetDefault("save_path", filepath.Join(HOME, "autocorr-data"))

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/autocorr"))
	viper.AddConfigPath(dotAutocorr)
	viper.AddConfigPath(".")
	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	autocorr.Build.Date = buildDate
	autocorr.Build.Githash = githash
	autocorr.Build.Gitdate = gitdate
	autocorr.Build.Summary = fmt.Sprintf("autocorrd version %s (git commit %s of %s)",
		autocorr.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		autocorr.Build.Host = host
	} else {
		autocorr.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	memprofile := flag.String("memprofile", "", "write memory profile to given file")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is autocorrd version %s\n", autocorr.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		os.Exit(0)
	}

	banner := fmt.Sprintf("\nThis is autocorrd version %s (git commit %s)\n",
		autocorr.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".autocorr", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	autocorr.ProblemLogger = startLogger(problemname)
	autocorr.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems       to %s\n", problemname)
	fmt.Printf("Logging client updates to %s\n\n", logname)
	autocorr.UpdateLogger.Printf("\n\n\n\n%s", banner)

	// Find config file, creating it if needed, and read it.
	if err := setupViper(); err != nil {
		panic(err)
	}

	abort := make(chan struct{})

	// Record this server session in the database, when one is reachable.
	activity := &corrdb.ActivityMessage{
		ID:        ulid.Make().String(),
		Hostname:  autocorr.Build.Host,
		Githash:   githash,
		Version:   autocorr.Build.Version,
		GoVersion: runtime.Version(),
		Start:     autocorr.ServerStartTime,
	}
	db := corrdb.StartConnection(activity, abort)

	// The only device today is the simulator; hardware time taggers attach
	// through their own driver processes speaking the same RPC surface.
	device := autocorr.NewSimCorrelator(viper.GetFloat64("sim_mean_counts"))
	saver := autocorr.NewTraceSaver(viper.GetString("save_path"))
	saver.SetDB(db)
	controller := autocorr.NewCorrelationController(device, saver)
	control := autocorr.NewCorrelationControl(controller)

	// Persist acquisition parameters at shutdown.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("\nShutting down, saving parameters.")
		controller.Stop()
		control.SaveState()
		close(abort)
		// The RPC accept loop never returns on its own, so this is the
		// only shutdown path that can write the profile.
		writeMemoryProfile(memprofile)
		os.Exit(0)
	}()

	go func() {
		if err := autocorr.RunClientUpdater(autocorr.Ports.Status, abort); err != nil {
			autocorr.ProblemLogger.Printf("client updater failed: %v", err)
		}
	}()
	go func() {
		if err := autocorr.RunTracePublisher(autocorr.Ports.Trace, abort); err != nil {
			autocorr.ProblemLogger.Printf("trace publisher failed: %v", err)
		}
	}()
	if err := autocorr.RunRPCServer(control, autocorr.Ports.RPC); err != nil {
		log.Fatal(err)
	}
}

// writeMemoryProfile writes the memory use profile to the indicated file.
// If `memprofile` points to an empty string, do not write.
func writeMemoryProfile(memprofile *string) {
	if *memprofile == "" {
		return
	}

	f, err := os.Create(*memprofile)
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	defer f.Close()
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
}
