package tsvlog

import (
	"math"
	"strconv"
)

// InferenceHeader is the column order of the primary inference log.
var InferenceHeader = []string{
	"ts", "user_id", "rep_id", "FI_L", "FI_R", "AIF", "AI_RMS", "AI_iEMG", "BI",
	"stage_L", "stage_R", "BI_stage", "BI_text",
}

// TelemetryHeader is the column order of the per-packet inertial tempo log.
var TelemetryHeader = []string{
	"ts_unix", "user_id", "side", "ts_ms",
	"imu_state_num", "imu_state", "rep_id",
	"desc_ms", "rise_ms", "tempo_cv", "tempo_score", "tempo_level",
	"pitch_deg", "pitch_vel_dps",
}

// InferenceRow is one fused-inference result. Scores are rounded to four
// decimals on write; the timestamp keeps millisecond precision.
type InferenceRow struct {
	TS     float64
	UserID string
	RepID  uint16

	FIL, FIR               float64
	AIF, AIRMS, AIIEMG, BI float64

	StageL, StageR string
	BIStage        string
	BIText         string
}

// Record renders the row in InferenceHeader order.
func (r InferenceRow) Record() []string {
	return []string{
		strconv.FormatFloat(r.TS, 'f', 3, 64),
		r.UserID,
		strconv.Itoa(int(r.RepID)),
		round4(r.FIL), round4(r.FIR),
		round4(r.AIF), round4(r.AIRMS), round4(r.AIIEMG), round4(r.BI),
		r.StageL, r.StageR, r.BIStage, r.BIText,
	}
}

// TelemetryRow is one received inertial telemetry packet plus its derived
// tempo score and level.
type TelemetryRow struct {
	TS       float64
	UserID   string
	Side     string
	DeviceTS uint32

	PhaseNum int8
	Phase    string
	RepID    uint16

	DescentMS, RiseMS uint16
	TempoCV           float64
	TempoScore        int
	TempoLevel        string

	PitchDeg, PitchVelDPS float64
}

// Record renders the row in TelemetryHeader order.
func (r TelemetryRow) Record() []string {
	return []string{
		roundN(r.TS, 3),
		r.UserID,
		r.Side,
		strconv.FormatUint(uint64(r.DeviceTS), 10),
		strconv.Itoa(int(r.PhaseNum)),
		r.Phase,
		strconv.Itoa(int(r.RepID)),
		strconv.Itoa(int(r.DescentMS)),
		strconv.Itoa(int(r.RiseMS)),
		roundN(r.TempoCV, 3),
		strconv.Itoa(r.TempoScore),
		r.TempoLevel,
		roundN(r.PitchDeg, 2),
		roundN(r.PitchVelDPS, 2),
	}
}

// roundN renders v rounded to n decimals in the shortest form that
// preserves it ("1.5", not "1.500"). Non-finite values render as 0.
func roundN(v float64, n int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	p := math.Pow(10, float64(n))
	return strconv.FormatFloat(math.RoundToEven(v*p)/p, 'f', -1, 64)
}

func round4(v float64) string { return roundN(v, 4) }
