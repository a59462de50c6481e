package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinevo-data/fatigue.report/internal/config"
	"github.com/kinevo-data/fatigue.report/internal/emg"
	"github.com/kinevo-data/fatigue.report/internal/fusion"
	"github.com/kinevo-data/fatigue.report/internal/model"
	"github.com/kinevo-data/fatigue.report/internal/sensormux"
	"github.com/kinevo-data/fatigue.report/internal/tsvlog"
	"github.com/kinevo-data/fatigue.report/internal/wire"
)

// fixtureStream synthesizes a framed port byte stream: a telemetry packet,
// then EMG sample packets carrying a low-amplitude sine.
func fixtureStream(t *testing.T, packets, samplesPerPacket int) []byte {
	t.Helper()

	var stream []byte
	stream = append(stream, sensormux.Frame(wire.AppendTelemetry(nil, wire.Telemetry{
		DeviceTS: 1000, PitchDeg: 10, PitchVelDPS: 20, Phase: wire.PhaseRise,
		RepID: 3, DescentMS: 800, RiseMS: 700, TempoCV: 0.1,
	}))...)

	idx := 0
	for p := 0; p < packets; p++ {
		samples := make([]int16, samplesPerPacket)
		for i := range samples {
			samples[i] = int16(200 * math.Sin(2*math.Pi*40*float64(idx)/500))
			idx++
		}
		stream = append(stream, sensormux.Frame(wire.AppendEMG(nil, wire.EMGBatch{
			Seq: uint8(p), DeviceTS: uint32(1000 + 100*p), SampleRate: 500, Samples: samples,
		}))...)
	}
	return stream
}

// testService builds a full service against mock ports, a fast calibration
// schedule, and sinks in a temp dir.
func testService(t *testing.T, dir string) (*fusionService, func()) {
	t.Helper()

	cfg := config.EmptyFusionConfig()

	predSink, err := tsvlog.Open(filepath.Join(dir, inferenceLogFile), tsvlog.InferenceHeader)
	require.NoError(t, err)
	imuSink, err := tsvlog.Open(filepath.Join(dir, telemetryLogFile), tsvlog.TelemetryHeader)
	require.NoError(t, err)

	newTestEngine := func(side string) *emg.SideEngine {
		e := emg.NewSideEngine(side, 500, 32, 15)
		e.Calibration().SetTiming(time.Millisecond, 2*time.Millisecond)
		return e
	}

	stream := fixtureStream(t, 8, 32)
	svc := &fusionService{
		cfg:      func() *config.FusionConfig { return cfg },
		userID:   "user_test",
		master:   fusion.SideLeft,
		pred:     model.NewPredictor(model.LoadRegistry(filepath.Join(dir, "no-models"))),
		predSink: predSink,
		imuSink:  imuSink,
		left:     newSideService(fusion.SideLeft, sensormux.NewMockPacketMux(stream), newTestEngine("L")),
		right:    newSideService(fusion.SideRight, sensormux.NewMockPacketMux(stream), newTestEngine("R")),
		now:      time.Now,
	}
	closeSinks := func() {
		require.NoError(t, predSink.Close())
		require.NoError(t, imuSink.Close())
	}
	return svc, closeSinks
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"), "log must end on a row boundary")

	var rows [][]string
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// TestServiceShutdownLeavesCompleteRows runs both sides end to end against
// replayed packet streams and interrupts the loop mid-session: both log
// files must contain only complete, well-formed rows.
func TestServiceShutdownLeavesCompleteRows(t *testing.T) {
	dir := t.TempDir()
	svc, closeSinks := testService(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Enough hops for calibration to settle and cycles to flow.
		time.Sleep(600 * time.Millisecond)
		cancel()
	}()
	svc.run(ctx)
	closeSinks()

	imuRows := readRows(t, filepath.Join(dir, telemetryLogFile))
	require.GreaterOrEqual(t, len(imuRows), 3, "header plus one telemetry row per side")
	assert.Equal(t, tsvlog.TelemetryHeader, imuRows[0])
	for _, row := range imuRows[1:] {
		require.Len(t, row, len(tsvlog.TelemetryHeader))
		assert.Equal(t, "user_test", row[1])
		assert.Contains(t, []string{"L", "R"}, row[2])
		assert.Equal(t, "RISE", row[5])
		assert.Equal(t, "3", row[6])
	}

	predRows := readRows(t, filepath.Join(dir, inferenceLogFile))
	require.GreaterOrEqual(t, len(predRows), 2, "header plus at least one inference row")
	assert.Equal(t, tsvlog.InferenceHeader, predRows[0])
	for _, row := range predRows[1:] {
		require.Len(t, row, len(tsvlog.InferenceHeader))

		ts, err := strconv.ParseFloat(row[0], 64)
		require.NoError(t, err)
		assert.Greater(t, ts, 0.0)

		for _, col := range []int{3, 4, 5, 6, 7, 8} {
			v, err := strconv.ParseFloat(row[col], 64)
			require.NoError(t, err, "column %d", col)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		// Identical streams on both sides: rep id comes from the master
		// and the session stays balanced.
		assert.Equal(t, "3", row[2])
		assert.Equal(t, "A_balanced", row[11])
	}
}

func TestServiceSkipsUnknownPackets(t *testing.T) {
	dir := t.TempDir()
	svc, closeSinks := testService(t, dir)
	defer closeSinks()

	sd := svc.left
	svc.handlePacket(sd, []byte{0xEE, 1, 2, 3})
	assert.Empty(t, sd.samples)
	assert.Empty(t, sd.telem)
}

func TestServiceDrainFeedsEngine(t *testing.T) {
	dir := t.TempDir()
	svc, closeSinks := testService(t, dir)
	defer closeSinks()

	sd := svc.left
	sd.samples <- make([]int16, 32)
	sd.telem <- wire.Telemetry{RepID: 9}
	svc.drain(sd)

	assert.Empty(t, sd.samples)
	assert.Equal(t, uint16(9), sd.engine.Telemetry().RepID)
}
