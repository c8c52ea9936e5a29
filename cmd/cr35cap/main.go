package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/OpenPrinting/go-mfp/proto/escl"
	"github.com/grandcat/zeroconf"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mhelsper/cr35cap/internal/capture"
	"github.com/mhelsper/cr35cap/internal/config"
	"github.com/mhelsper/cr35cap/internal/cr35"
	"github.com/mhelsper/cr35cap/internal/webui"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	addrFlag     string
	portFlag     uint16
	logLevelFlag string
	logFileFlag  string

	modeFlag    uint32
	outFlag     string
	formatFlag  string
	dpiFlag     int
	timeoutFlag time.Duration

	listenFlag  int
	nameFlag    string
	dataDirFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cr35cap",
		Short: "Network capture bridge for CR35 computed-radiography devices",
		Long: `cr35cap drives a CR35 imaging plate reader over its TCP protocol and
delivers the assembled 16-bit exposures as TIFF, PNG or PDF files, or as
an eSCL (AirScan) scanner on the local network.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevelFlag, logFileFlag)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&addrFlag, "addr", "a", "", "Device IP address or hostname")
	rootCmd.PersistentFlags().Uint16VarP(&portFlag, "port", "p", 2006, "Device TCP port")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Rotated log file path (in addition to stderr)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Acquire one exposure and save it",
		Long: `Connect to the device, start an acquisition in the given mode, wait for
the plate to be read, and save the assembled exposure.`,
		RunE: runScan,
	}
	scanCmd.Flags().Uint32VarP(&modeFlag, "mode", "m", 5, "Acquisition mode id (see 'cr35cap modes')")
	scanCmd.Flags().StringVarP(&outFlag, "out", "o", ".", "Output directory")
	scanCmd.Flags().StringVarP(&formatFlag, "format", "f", "image/tiff", "Output format (image/tiff, image/png, application/pdf)")
	scanCmd.Flags().IntVar(&dpiFlag, "dpi", 300, "Nominal plate resolution for PDF page sizing")
	scanCmd.Flags().DurationVar(&timeoutFlag, "timeout", 5*time.Minute, "Overall acquisition timeout")

	modesCmd := &cobra.Command{
		Use:   "modes",
		Short: "List the device's acquisition modes",
		RunE:  runModes,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture bridge (web UI + eSCL server)",
		Long: `Connect to the device and stay connected, exposing a web control UI and
an eSCL scanner endpoint announced over mDNS.`,
		RunE: runServe,
	}
	serveCmd.Flags().IntVarP(&listenFlag, "listen", "l", 8080, "HTTP listen port")
	serveCmd.Flags().StringVar(&nameFlag, "name", "CR35", "Advertised device name")
	serveCmd.Flags().StringVar(&dataDirFlag, "data-dir", "data", "Directory for the settings file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cr35cap %s (%s)\n", version, commit)
		},
	}

	rootCmd.AddCommand(scanCmd, modesCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireAddr() error {
	if addrFlag == "" {
		return fmt.Errorf("--addr is required")
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := requireAddr(); err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Receiving"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	ctrl := capture.New(capture.Options{
		Host:      addrFlag,
		Port:      portFlag,
		OnNewData: func() { bar.Add(1) },
	})
	if err := ctrl.Connect(); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeoutFlag)
	defer cancelTimeout()

	fmt.Printf("Acquiring (mode %d)... expose the plate now\n", modeFlag)
	path, img, err := capture.RunSaveJob(ctx, ctrl, modeFlag, formatFlag, outFlag, dpiFlag)
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("Saved %dx%d exposure to %s\n", img.Width, img.Height, path)
	return nil
}

func runModes(cmd *cobra.Command, args []string) error {
	if err := requireAddr(); err != nil {
		return err
	}

	ctrl := capture.New(capture.Options{Host: addrFlag, Port: portFlag})
	if err := ctrl.Connect(); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	modes, err := ctrl.WaitModeList(ctx)
	if err != nil {
		return fmt.Errorf("mode list not received: %w", err)
	}

	fmt.Printf("Device reports %d acquisition modes:\n", len(modes))
	for _, m := range modes {
		fmt.Printf("  %s\n", m)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := requireAddr(); err != nil {
		return err
	}

	settings, err := config.NewStore(dataDirFlag)
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	st := settings.Get()
	st.Host = addrFlag
	st.Port = portFlag
	if err := settings.Update(st); err != nil {
		slog.Warn("settings save failed", "err", err)
	}

	ctrl := capture.New(capture.Options{Host: addrFlag, Port: portFlag})
	if err := ctrl.Connect(); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// eSCL surface
	adapter := capture.NewESCLAdapter(ctrl, st.Mode, st.DPI)
	esclServer := escl.NewAbstractServer(escl.AbstractServerOptions{
		Scanner:  adapter,
		BasePath: "",
	})

	job := &capture.JobStatus{}
	mux := http.NewServeMux()
	mux.Handle("/eSCL/", http.StripPrefix("/eSCL", esclServer))
	mux.Handle("/", webui.NewHandler(ctrl, job, settings))

	addr := fmt.Sprintf(":%d", listenFlag)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: logMiddleware(mux),
	}

	// mDNS advertisement for AirScan clients
	mdnsServer, err := zeroconf.Register(
		nameFlag,
		"_uscan._tcp",
		"local.",
		listenFlag,
		[]string{
			"txtvers=1",
			"ty=" + nameFlag,
			"pdl=image/png,application/pdf",
			"cs=grayscale",
			"is=adf",
			"duplex=F",
			"rs=eSCL",
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("mDNS registration: %w", err)
	}
	defer mdnsServer.Shutdown()
	slog.Info("mDNS registered", "name", nameFlag, "service", "_uscan._tcp")

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				slog.Debug("device status", "state", stateSummary(ctrl))
			}
		}
	}()

	go func() {
		slog.Info("capture bridge started",
			"addr", addr,
			"webui", fmt.Sprintf("http://%s/", net.JoinHostPort("localhost", strconv.Itoa(listenFlag))),
		)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func setupLogging(level, file string) {
	var w io.Writer = os.Stderr
	if file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    1, // MB
			MaxBackups: 3,
		})
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)})))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// responseRecorder captures the status code for logging.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

// stateSummary is used by the periodic serve-mode status log.
func stateSummary(ctrl *capture.Controller) string {
	if !ctrl.Connected() {
		return "offline"
	}
	return cr35.StateName(ctrl.State())
}
