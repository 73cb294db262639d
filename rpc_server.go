package autocorr

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/spf13/viper"
)

// CorrelationControl is the RPC-exposed server that configures and operates
// one CorrelationController.
type CorrelationControl struct {
	controller *CorrelationController
}

// NewCorrelationControl wraps a controller for RPC use and restores any
// persisted acquisition parameters from the viper config.
func NewCorrelationControl(cc *CorrelationController) *CorrelationControl {
	control := &CorrelationControl{controller: cc}
	control.restoreState()
	return control
}

// restoreState applies persisted acquisition parameters, if any. Values the
// controller rejects (e.g., a bin width below the simulator's minimum after
// a device swap) are logged by the setters and the defaults stay in force.
func (s *CorrelationControl) restoreState() {
	if v := viper.GetInt("count_length"); v > 0 {
		s.controller.SetCountLength(v)
	}
	if v := viper.GetFloat64("bin_width"); v > 0 {
		s.controller.SetBinWidth(v)
	}
	if v := viper.GetFloat64("refresh_time"); v > 0 {
		s.controller.SetRefreshTime(time.Duration(v * float64(time.Second)))
	}
	s.controller.SetSavingState(viper.GetBool("saving"))
}

// SaveState writes the current acquisition parameters back to the config
// file. The main program calls this at shutdown.
func (s *CorrelationControl) SaveState() {
	params := s.controller.Parameters()
	viper.Set("count_length", params.CountLength)
	viper.Set("bin_width", params.BinWidth)
	viper.Set("refresh_time", params.RefreshTime.Seconds())
	viper.Set("saving", s.controller.SavingState())
	if err := viper.WriteConfig(); err != nil {
		ProblemLogger.Printf("could not write config file: %v", err)
	}
}

// Start begins a measurement with the current parameters.
func (s *CorrelationControl) Start(dummy *string, reply *bool) error {
	err := s.controller.Start()
	*reply = (err == nil)
	return err
}

// Stop requests a cooperative stop and returns once the measurement has
// quiesced.
func (s *CorrelationControl) Stop(dummy *string, reply *bool) error {
	s.controller.Stop()
	*reply = true
	return nil
}

// Continue resumes a paused measurement without reconfiguring the device.
func (s *CorrelationControl) Continue(dummy *string, reply *bool) error {
	err := s.controller.Continue()
	*reply = (err == nil)
	return err
}

// ConfigureCountLength changes the number of requested bins. The reply is
// the value in effect afterward, which is unchanged if the request was
// rejected.
func (s *CorrelationControl) ConfigureCountLength(n *int, reply *int) error {
	cur, err := s.controller.SetCountLength(*n)
	*reply = cur
	return err
}

// ConfigureBinWidth changes the bin width in picoseconds.
func (s *CorrelationControl) ConfigureBinWidth(w *float64, reply *float64) error {
	cur, err := s.controller.SetBinWidth(*w)
	*reply = cur
	return err
}

// ConfigureRefreshTime changes the poll period, given in seconds.
func (s *CorrelationControl) ConfigureRefreshTime(seconds *float64, reply *float64) error {
	cur, err := s.controller.SetRefreshTime(time.Duration(*seconds * float64(time.Second)))
	*reply = cur.Seconds()
	return err
}

// SaveData writes the latest trace to disk. The reply is the location
// written.
func (s *CorrelationControl) SaveData(tag *string, reply *string) error {
	location, err := s.controller.SaveTrace(*tag)
	*reply = location
	return err
}

// SendAllStatus causes a broadcast to clients containing all broadcastable
// status info.
func (s *CorrelationControl) SendAllStatus(dummy *string, reply *bool) error {
	s.broadcastStatus()
	sendClientUpdate(ClientUpdate{tag: "SENDALL", state: 0})
	LogServerStatus(s.controller)
	*reply = true
	return nil
}

func (s *CorrelationControl) broadcastStatus() {
	params := s.controller.Parameters()
	sendClientUpdate(ClientUpdate{tag: "STATUS", state: ControllerStatus{
		Running:       s.controller.Running(),
		CountLength:   params.CountLength,
		BinWidth:      params.BinWidth,
		RefreshTime:   params.RefreshTime.Seconds(),
		MeasurementID: s.controller.MeasurementID(),
	}})
}

// RunRPCServer sets up and runs a permanent JSON-RPC server. It returns only
// on a listen error.
func RunRPCServer(control *CorrelationControl, portrpc int) error {
	// Broadcast the full status periodically, so late-joining clients
	// converge without asking.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			control.broadcastStatus()
		}
	}()

	server := rpc.NewServer()
	if err := server.Register(control); err != nil {
		return err
	}
	server.HandleHTTP(rpc.DefaultRPCPath, rpc.DefaultDebugPath)
	port := fmt.Sprintf(":%d", portrpc)
	listener, err := net.Listen("tcp", port)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept error: %w", err)
		}
		UpdateLogger.Printf("new connection established")
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}
