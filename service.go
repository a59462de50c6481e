package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kinevo-data/fatigue.report/internal/config"
	"github.com/kinevo-data/fatigue.report/internal/emg"
	"github.com/kinevo-data/fatigue.report/internal/fusion"
	"github.com/kinevo-data/fatigue.report/internal/model"
	"github.com/kinevo-data/fatigue.report/internal/mqttpub"
	"github.com/kinevo-data/fatigue.report/internal/sensormux"
	"github.com/kinevo-data/fatigue.report/internal/tsvlog"
	"github.com/kinevo-data/fatigue.report/internal/wire"
)

// Channel capacities between the per-side ingest goroutines and the hop
// loop. At 500 Hz with ~50-sample packets the sample channel holds multiple
// hops of backlog; overflow drops the packet rather than stalling ingest.
const (
	sampleChanCap = 256
	telemChanCap  = 64
)

// sideService owns one body side: its port mux, its engine, and the bounded
// channels carrying decoded packets from ingest to the hop loop. The engine
// itself is touched only by the hop loop.
type sideService struct {
	side   fusion.Side
	mux    sensormux.PacketMuxInterface
	engine *emg.SideEngine

	samples chan []int16
	telem   chan wire.Telemetry

	droppedSamples uint64
}

func newSideService(side fusion.Side, mux sensormux.PacketMuxInterface, engine *emg.SideEngine) *sideService {
	return &sideService{
		side:    side,
		mux:     mux,
		engine:  engine,
		samples: make(chan []int16, sampleChanCap),
		telem:   make(chan wire.Telemetry, telemChanCap),
	}
}

// fusionService wires both sides through pairing, inference, and the log
// sinks.
type fusionService struct {
	cfg    func() *config.FusionConfig
	userID string
	master fusion.Side
	pred   *model.Predictor
	debug  bool

	predSink *tsvlog.Sink
	imuSink  *tsvlog.Sink
	pub      *mqttpub.Publisher

	left, right *sideService

	now func() time.Time
}

// run starts the per-side monitor and ingest goroutines and drives the hop
// loop until the context ends. The log sinks are owned by the caller and
// stay open across the whole run.
func (s *fusionService) run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, sd := range []*sideService{s.left, s.right} {
		sd := sd
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sd.mux.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("[%s] port monitor failed: %v", sd.side, err)
			}
			log.Printf("[%s] monitor routine terminated", sd.side)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ingest(ctx, sd)
			log.Printf("[%s] ingest routine terminated", sd.side)
		}()
	}

	ticker := time.NewTicker(s.cfg().HopInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// ingest decodes packets from the side's mux, forwards them toward the hop
// loop, and writes telemetry rows at arrival rate.
func (s *fusionService) ingest(ctx context.Context, sd *sideService) {
	id, ch := sd.mux.Subscribe()
	defer sd.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			s.handlePacket(sd, payload)
		}
	}
}

func (s *fusionService) handlePacket(sd *sideService, payload []byte) {
	switch wire.Tag(payload) {
	case wire.TagEMG:
		batch, err := wire.DecodeEMG(payload)
		if err != nil {
			if s.debug {
				log.Printf("[%s] bad sample packet: %v", sd.side, err)
			}
			return
		}
		select {
		case sd.samples <- batch.Samples:
		default:
			sd.droppedSamples++
			if sd.droppedSamples%100 == 1 {
				log.Printf("[%s] sample backlog full, dropped %d packets", sd.side, sd.droppedSamples)
			}
		}

	case wire.TagTelemetry:
		t, err := wire.DecodeTelemetry(payload)
		if err != nil {
			if s.debug {
				log.Printf("[%s] bad telemetry packet: %v", sd.side, err)
			}
			return
		}
		select {
		case sd.telem <- t:
		default:
			// Only the latest snapshot matters to the engine; a full
			// channel means the hop loop has fresher data waiting anyway.
		}
		s.logTelemetry(sd, t)

	default:
		if s.debug {
			log.Printf("[%s] unknown packet tag 0x%02x", sd.side, wire.Tag(payload))
		}
	}
}

// logTelemetry writes one telemetry row immediately; this stream records
// every packet, independent of fusion cadence.
func (s *fusionService) logTelemetry(sd *sideService, t wire.Telemetry) {
	score := fusion.TempoScore(float64(t.TempoCV))
	row := tsvlog.TelemetryRow{
		TS:          float64(s.now().UnixNano()) / 1e9,
		UserID:      s.userID,
		Side:        string(sd.side),
		DeviceTS:    t.DeviceTS,
		PhaseNum:    int8(t.Phase),
		Phase:       t.Phase.String(),
		RepID:       t.RepID,
		DescentMS:   t.DescentMS,
		RiseMS:      t.RiseMS,
		TempoCV:     float64(t.TempoCV),
		TempoScore:  score,
		TempoLevel:  fusion.TempoStage(score),
		PitchDeg:    float64(t.PitchDeg),
		PitchVelDPS: float64(t.PitchVelDPS),
	}
	if err := s.imuSink.Append(row.Record()); err != nil {
		log.Printf("[%s] telemetry log write failed: %v", sd.side, err)
	}
	s.pub.PublishTelemetry(string(sd.side), row)
}

// tick runs one hop: drain the ingest channels into the engines, process
// both sides, and if both produced a synchronized cycle, infer and log.
func (s *fusionService) tick() {
	s.drain(s.left)
	s.drain(s.right)

	recL, okL := s.left.engine.Process()
	recR, okR := s.right.engine.Process()
	if !okL || !okR {
		return
	}

	cfg := s.cfg()
	pairer := fusion.Synchronizer{Master: s.master, Tolerance: cfg.PairTolerance()}
	pair, ok := pairer.Pair(&recL, &recR)
	if !ok {
		if s.debug {
			lag := recL.TS.Sub(recR.TS)
			log.Printf("skipping cycle: side lag %s exceeds %s", lag, cfg.PairTolerance())
		}
		return
	}

	x := fusion.Fuse(pair)
	tempoNorm := fusion.NormalizeCV(pair.TempoCV)
	pred := s.pred.Predict(x, fusion.SideVector(pair.Left), fusion.SideVector(pair.Right), tempoNorm)
	asym := fusion.ComputeAsymmetry(pair, pred.FIL, pred.FIR)

	row := tsvlog.InferenceRow{
		TS:      float64(pair.TS.UnixNano()) / 1e9,
		UserID:  s.userID,
		RepID:   pair.RepID,
		FIL:     pred.FIL,
		FIR:     pred.FIR,
		AIF:     asym.AIF,
		AIRMS:   asym.AIRMS,
		AIIEMG:  asym.AIIEMG,
		BI:      asym.BI,
		StageL:  fusion.FatigueStage(pred.FIL),
		StageR:  fusion.FatigueStage(pred.FIR),
		BIStage: fusion.BalanceStage(asym.BI),
		BIText:  fusion.BalanceText(asym.BI, asym.DirScore),
	}
	if err := s.predSink.Append(row.Record()); err != nil {
		log.Printf("inference log write failed: %v", err)
	}
	s.pub.PublishInference(row)

	if s.debug {
		log.Printf("[PRED] tier=%s rep=%d FI_L=%.4f FI_R=%.4f AIF=%.4f BI=%.4f",
			pred.Tier, pair.RepID, pred.FIL, pred.FIR, asym.AIF, asym.BI)
	}
}

// drain moves every queued packet into the side's engine. Bounded by the
// channel capacities, so one hop cannot spin here indefinitely.
func (s *fusionService) drain(sd *sideService) {
	for {
		select {
		case batch := <-sd.samples:
			sd.engine.FeedSamples(batch)
		case t := <-sd.telem:
			sd.engine.FeedTelemetry(t)
		default:
			return
		}
	}
}
