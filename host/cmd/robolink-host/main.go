package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"robolink/host/config"
	"robolink/host/control"
	"robolink/host/gateway"
	"robolink/host/imu"
	"robolink/host/record"
	"robolink/host/serial"
	"robolink/motor"
	"robolink/protocol"
)

var (
	configPath = flag.String("config", "", "JSON configuration file")
	device     = flag.String("device", "", "IMU serial device path")
	baud       = flag.Int("baud", 0, "IMU baud rate")
	remoteIP   = flag.String("gateway", "", "CAN-ETH gateway IP address")
	remotePort = flag.Int("port", 0, "CAN-ETH gateway UDP port")
	localPort  = flag.Int("local-port", -1, "Local UDP port (0 = ephemeral)")
	motorID    = flag.Int("motor", -1, "Motor id")
	masterID   = flag.Int("master", -1, "Host (master) id")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	recordOn   = flag.Bool("record", false, "Record IMU data to CSV (imu command)")
	recordDir  = flag.String("record-dir", "", "Directory for IMU recordings")
	compress   = flag.Bool("compress", false, "xz-compress IMU recordings")
	imuCommand = flag.String("imu-cmd", "", "Command sent to the IMU before streaming")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "console"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "ports":
		err = runPorts()
	case "params":
		printParams(os.Stdout)
	case "imu":
		err = runIMU(ctx, cfg, logger)
	case "console":
		err = runConsole(ctx, cfg, logger)
	case "scan":
		err = runScan(ctx, cfg, logger)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] [ports|params|imu|console|scan]\n\n", os.Args[0])
	flag.PrintDefaults()
}

// loadConfig reads the configuration file, if any, and applies flags on top.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}
	if *remoteIP != "" {
		cfg.Gateway.RemoteIP = *remoteIP
	}
	if *remotePort > 0 {
		cfg.Gateway.RemotePort = *remotePort
	}
	if *localPort >= 0 {
		cfg.Gateway.LocalPort = *localPort
	}
	if *motorID >= 0 {
		if *motorID > 0xFF {
			return nil, fmt.Errorf("motor id %d out of range", *motorID)
		}
		cfg.Gateway.MotorID = uint8(*motorID)
	}
	if *masterID >= 0 {
		if *masterID > 0xFF {
			return nil, fmt.Errorf("master id %d out of range", *masterID)
		}
		cfg.Gateway.MasterID = uint8(*masterID)
	}
	if *logLevel != "" {
		if _, err := config.ParseLogLevel(*logLevel); err != nil {
			return nil, err
		}
		cfg.LogLevel = *logLevel
	}
	if *recordOn {
		cfg.Recording.Enabled = true
	}
	if *recordDir != "" {
		cfg.Recording.Dir = *recordDir
		cfg.Recording.Enabled = true
	}
	if *compress {
		cfg.Recording.Compress = true
	}
	return cfg, nil
}

func runPorts() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%-20s %s\n", p.Name, p.Type)
	}
	return nil
}

func runIMU(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Serial.Device == "" {
		return errors.New("no IMU device given (use -device)")
	}

	session, err := imu.Open(cfg.SerialPort(), logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if cfg.Recording.Enabled {
		rec, err := record.Create(cfg.Recording.Dir, cfg.Recording.Compress)
		if err != nil {
			return err
		}
		if err := session.StartRecording(rec); err != nil {
			rec.Close()
			return err
		}
		logger.Info("recording", "path", rec.Path(), "session", rec.Session())
	}

	if *imuCommand != "" {
		if err := session.SendCommand(*imuCommand); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case rec := <-session.Records():
				printRecord(rec)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				st := session.Stats()
				logger.Info("imu stats", "frames", st.Frames, "crc_errors", st.CRCErrors,
					"length_errors", st.LengthErrors, "unrecognized", st.Unrecognized)
			}
		}
	})

	return g.Wait()
}

func printRecord(rec protocol.HI91) {
	fmt.Printf("t=%dms acc=[%.3f %.3f %.3f] gyr=[%.3f %.3f %.3f] rpy=[%.2f %.2f %.2f] temp=%d\n",
		rec.SystemTime,
		rec.Acc[0], rec.Acc[1], rec.Acc[2],
		rec.Gyr[0], rec.Gyr[1], rec.Gyr[2],
		rec.Roll, rec.Pitch, rec.Yaw,
		rec.Temperature)
}

func dialGateway(cfg *config.Config, logger *slog.Logger) (*gateway.Conn, *control.Controller, error) {
	addr := cfg.Addressing()
	conn, err := gateway.Dial(cfg.GatewayConn(), addr.MasterID, logger)
	if err != nil {
		return nil, nil, err
	}
	return conn, control.New(conn, addr, logger), nil
}

// printEvents writes every classified inbound frame to stdout until ctx is
// done.
func printEvents(ctx context.Context, conn *gateway.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-conn.Events():
			fmt.Printf("%s %s\n", ev.Time.Format("15:04:05.000"), formatMessage(ev.Message))
		}
	}
}

func runConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, ctrl, err := dialGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Connected to gateway %s from %s (motor %d, master 0x%02X)\n",
		conn.RemoteAddr(), conn.LocalAddr(), cfg.Gateway.MotorID, cfg.Gateway.MasterID)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	con := newConsole(gctx, ctrl, conn, os.Stdout, cfg.Gateway.MITRateHz)

	// Stdin reads cannot be interrupted, so lines are handed over a channel.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	g.Go(func() error { return printEvents(gctx, conn) })

	g.Go(func() error {
		defer con.stopLoop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case line, ok := <-lines:
				if !ok {
					cancel()
					return nil
				}
				err := con.exec(line)
				if errors.Is(err, errQuit) {
					fmt.Println("Goodbye!")
					cancel()
					return nil
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			}
		}
	})

	return g.Wait()
}

func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, ctrl, err := dialGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	found := make(map[uint8]bool)
	conn.SetHandler(func(ev gateway.Event) {
		if d, ok := ev.Message.(motor.DeviceInfo); ok && !found[d.MotorID] {
			found[d.MotorID] = true
			fmt.Printf("motor %d device %s\n", d.MotorID, d.DeviceID)
		}
	})

	fmt.Printf("Scanning motor ids 0-%d via %s...\n", control.ScanLast, conn.RemoteAddr())
	if err := ctrl.Scan(ctx); err != nil {
		return err
	}

	// Allow late replies to arrive.
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
	}
	return nil
}
