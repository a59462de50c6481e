// session-report renders a recorded inference log as a standalone HTML
// chart: per-side fatigue and the balance index over the session, so a
// session can be reviewed without the live dashboard.
//
// Usage:
//
//	session-report -in data/logs/reps_pred_dual.tsv -out session.html
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var (
	inPath  = flag.String("in", "data/logs/reps_pred_dual.tsv", "Inference log to render")
	outPath = flag.String("out", "session-report.html", "Output HTML file")
)

// cyclePoint is one inference row reduced to its plottable fields.
type cyclePoint struct {
	Elapsed float64 // seconds since the first cycle
	RepID   string
	FIL     float64
	FIR     float64
	BI      float64
}

// readCycles parses the tab-separated inference log. Rows that fail to
// parse are skipped with a warning rather than aborting the report.
func readCycles(r io.Reader) ([]cyclePoint, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"ts", "rep_id", "FI_L", "FI_R", "BI"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("log is missing column %q", name)
		}
	}

	var (
		points []cyclePoint
		t0     float64
		line   = 1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Printf("skipping line %d: %v", line, err)
			continue
		}

		ts, err1 := strconv.ParseFloat(rec[col["ts"]], 64)
		fiL, err2 := strconv.ParseFloat(rec[col["FI_L"]], 64)
		fiR, err3 := strconv.ParseFloat(rec[col["FI_R"]], 64)
		bi, err4 := strconv.ParseFloat(rec[col["BI"]], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			log.Printf("skipping line %d: unparseable numeric field", line)
			continue
		}

		if len(points) == 0 {
			t0 = ts
		}
		points = append(points, cyclePoint{
			Elapsed: ts - t0,
			RepID:   rec[col["rep_id"]],
			FIL:     fiL,
			FIR:     fiR,
			BI:      bi,
		})
	}
	return points, nil
}

func buildChart(points []cyclePoint) *charts.Line {
	xs := make([]string, len(points))
	fiL := make([]opts.LineData, len(points))
	fiR := make([]opts.LineData, len(points))
	bi := make([]opts.LineData, len(points))
	for i, p := range points {
		xs[i] = fmt.Sprintf("%.1fs", p.Elapsed)
		fiL[i] = opts.LineData{Value: p.FIL}
		fiR[i] = opts.LineData{Value: p.FIR}
		bi[i] = opts.LineData{Value: p.BI}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Report", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Fatigue and balance over session",
			Subtitle: fmt.Sprintf("cycles=%d span=%.1fs", len(points), points[len(points)-1].Elapsed),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "score"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elapsed"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("FI_L", fiL).
		AddSeries("FI_R", fiR).
		AddSeries("BI", bi)
	return line
}

func main() {
	flag.Parse()

	f, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer f.Close()

	points, err := readCycles(f)
	if err != nil {
		log.Fatalf("parse log: %v", err)
	}
	if len(points) == 0 {
		log.Fatalf("no inference cycles in %s", *inPath)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer out.Close()

	if err := buildChart(points).Render(out); err != nil {
		log.Fatalf("render chart: %v", err)
	}
	log.Printf("wrote %s (%d cycles)", *outPath, len(points))
}
