package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kinevo-data/fatigue.report/internal/config"
	"github.com/kinevo-data/fatigue.report/internal/emg"
	"github.com/kinevo-data/fatigue.report/internal/fusion"
	"github.com/kinevo-data/fatigue.report/internal/model"
	"github.com/kinevo-data/fatigue.report/internal/mqttpub"
	"github.com/kinevo-data/fatigue.report/internal/sensormux"
	"github.com/kinevo-data/fatigue.report/internal/session"
	"github.com/kinevo-data/fatigue.report/internal/tsvlog"
	"github.com/kinevo-data/fatigue.report/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to fusion config JSON")
	devMode    = flag.Bool("dev", false, "Replay fixture byte streams instead of opening serial ports")
	fixtureL   = flag.String("fixture-l", "fixtures_l.bin", "Left fixture stream for -dev")
	fixtureR   = flag.String("fixture-r", "fixtures_r.bin", "Right fixture stream for -dev")

	userIDFlag = flag.String("user-id", "", "Explicit subject id")
	userSeq    = flag.Bool("user-seq", false, "Assign the next sequential subject id")
	userPrefix = flag.String("user-prefix", "user", "Prefix for sequential subject ids")

	nameL = flag.String("name-l", "", "Left device USB product name override")
	nameR = flag.String("name-r", "", "Right device USB product name override")
	portL = flag.String("port-l", "", "Left port path or USB serial number override")
	portR = flag.String("port-r", "", "Right port path or USB serial number override")

	imuMaster = flag.String("imu-master", "", "Master side for rep/tempo selection (L or R)")
	pairLagMS = flag.Int("pair-lag-ms", 0, "Pairing tolerance override in milliseconds")
	logDir    = flag.String("log-dir", "", "Log directory override")
	modelsDir = flag.String("models-dir", "", "Model artifacts directory override")

	identityScale = flag.Bool("identity-scale", false, "Bypass the learned feature scaler")
	mqttBroker    = flag.String("mqtt", "", "Optional MQTT broker URL for live publishing")
	debugMode     = flag.Bool("debug", false, "Verbose per-cycle diagnostics")
)

// Log file names inside the configured log directory.
const (
	inferenceLogFile = "reps_pred_dual.tsv"
	telemetryLogFile = "imu_tempo.tsv"
)

const configReloadThrottle = 2 * time.Second

func main() {
	flag.Parse()

	log.Printf("fatigue.report %s", version.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("service failed: %v", err)
	}
	log.Print("graceful shutdown complete")
}

// run owns every resource with a close path: both sinks are flushed and
// closed on every return, signal-driven or not.
func run(ctx context.Context) error {
	cfgFn, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfgFn = overrideConfig(cfgFn)
	cfg := cfgFn()

	master, err := fusion.ParseSide(cfg.GetMasterSide())
	if err != nil {
		return err
	}

	userID := session.UserID(*userIDFlag, *userSeq, cfg.GetLogDir(), *userPrefix)
	log.Printf("session subject id=%s", userID)

	reg := model.LoadRegistry(cfg.GetModelsDir())
	pred := model.NewPredictor(reg)
	pred.ForceIdentity = *identityScale
	pred.Debug = *debugMode

	muxL, muxR, err := openPorts(ctx, cfg)
	if err != nil {
		return err
	}
	defer muxL.Close()
	defer muxR.Close()

	predSink, err := tsvlog.Open(filepath.Join(cfg.GetLogDir(), inferenceLogFile), tsvlog.InferenceHeader)
	if err != nil {
		return err
	}
	defer func() {
		if err := predSink.Close(); err != nil {
			log.Printf("closing inference log: %v", err)
		}
	}()

	imuSink, err := tsvlog.Open(filepath.Join(cfg.GetLogDir(), telemetryLogFile), tsvlog.TelemetryHeader)
	if err != nil {
		return err
	}
	defer func() {
		if err := imuSink.Close(); err != nil {
			log.Printf("closing telemetry log: %v", err)
		}
	}()

	var pub *mqttpub.Publisher
	if *mqttBroker != "" {
		pub, err = mqttpub.Connect(*mqttBroker, "fatigue-report-"+userID)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	svc := &fusionService{
		cfg:      cfgFn,
		userID:   userID,
		master:   master,
		pred:     pred,
		debug:    *debugMode,
		predSink: predSink,
		imuSink:  imuSink,
		pub:      pub,
		left:     newSideService(fusion.SideLeft, muxL, newEngine("L", cfg)),
		right:    newSideService(fusion.SideRight, muxR, newEngine("R", cfg)),
		now:      time.Now,
	}
	svc.run(ctx)
	return nil
}

// loadConfig returns a live config accessor: hot-reloading when the file
// exists, built-in defaults when it does not.
func loadConfig(path string) (func() *config.FusionConfig, error) {
	w, err := config.NewWatcher(path, configReloadThrottle)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("config %s not found, using built-in defaults", path)
			static := config.EmptyFusionConfig()
			return func() *config.FusionConfig { return static }, nil
		}
		return nil, err
	}
	return w.Current, nil
}

// overrideConfig layers command-line overrides on top of the live config so
// they survive hot reloads. The underlying config is copied, never mutated.
func overrideConfig(next func() *config.FusionConfig) func() *config.FusionConfig {
	return func() *config.FusionConfig {
		c := *next()
		if *nameL != "" {
			c.PortNameL = nameL
		}
		if *nameR != "" {
			c.PortNameR = nameR
		}
		if *imuMaster != "" {
			c.MasterSide = imuMaster
		}
		if *pairLagMS > 0 {
			c.PairLagMS = pairLagMS
		}
		if *logDir != "" {
			c.LogDir = logDir
		}
		if *modelsDir != "" {
			c.ModelsDir = modelsDir
		}
		return &c
	}
}

func newEngine(side string, cfg *config.FusionConfig) *emg.SideEngine {
	e := emg.NewSideEngine(side, cfg.GetSampleRate(), cfg.WindowSamples(), cfg.GetActiveVelocityDPS())
	e.Calibration().SetTiming(cfg.GetWarmupDuration(), cfg.GetCalibrationDuration())
	return e
}

// openPorts resolves and opens both sensor ports, or loads fixture streams
// in dev mode.
func openPorts(ctx context.Context, cfg *config.FusionConfig) (sensormux.PacketMuxInterface, sensormux.PacketMuxInterface, error) {
	if *devMode {
		dataL, err := os.ReadFile(*fixtureL)
		if err != nil {
			return nil, nil, fmt.Errorf("left fixture: %w", err)
		}
		dataR, err := os.ReadFile(*fixtureR)
		if err != nil {
			return nil, nil, fmt.Errorf("right fixture: %w", err)
		}
		return sensormux.NewMockPacketMux(dataL), sensormux.NewMockPacketMux(dataR), nil
	}

	muxL, err := openSide(ctx, cfg, cfg.GetPortNameL(), *portL)
	if err != nil {
		return nil, nil, fmt.Errorf("left sensor: %w", err)
	}
	muxR, err := openSide(ctx, cfg, cfg.GetPortNameR(), *portR)
	if err != nil {
		muxL.Close()
		return nil, nil, fmt.Errorf("right sensor: %w", err)
	}
	return muxL, muxR, nil
}

func openSide(ctx context.Context, cfg *config.FusionConfig, name, override string) (sensormux.PacketMuxInterface, error) {
	path := sensormux.ResolveWithRetry(ctx, sensormux.SystemPorts, name, override, cfg.GetDiscoveryRetries())
	if path == "" {
		return nil, fmt.Errorf("device %s not found", name)
	}
	return sensormux.NewRealPacketMux(path, sensormux.PortOptions{})
}
