// Package report summarizes a recorded illumination session and renders it as an HTML page of
// exposure, pulse width and photodiode charts.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/calvinmclean/endolight"
	"github.com/calvinmclean/endolight/eventlog"
)

// ModeChange is the time a mode was entered
type ModeChange struct {
	Elapsed time.Duration
	Mode    string
}

// Summary counts what happened in a session
type Summary struct {
	Duration    time.Duration
	Frames      int
	Commands    int
	Readings    int
	Errors      int
	Resets      int
	Offset      int
	SyncedAfter time.Duration
	Modes       []ModeChange
}

// sample is one point of a chart series
type sample struct {
	elapsed time.Duration
	values  []float64
}

// Report holds a parsed session
type Report struct {
	Session string
	Summary Summary

	intensity []sample
	widths    []sample
	voltages  []sample
	rotation  []sample
}

// Build parses events in the order they were logged. Malformed payloads are skipped.
func Build(session string, events []eventlog.Event) *Report {
	r := &Report{Session: session}
	s := &r.Summary

	for _, e := range events {
		s.Duration = max(s.Duration, e.Elapsed)

		switch e.Tag {
		case eventlog.TagGrab:
			s.Frames++
		case eventlog.TagMode:
			s.Modes = append(s.Modes, ModeChange{e.Elapsed, e.Payload})
		case eventlog.TagSynced:
			if s.SyncedAfter == 0 {
				s.SyncedAfter = e.Elapsed
			}
		case eventlog.TagBuffer:
			offset, err := strconv.Atoi(e.Payload)
			if err == nil {
				s.Offset = offset
			}
		case eventlog.TagError:
			s.Errors++
		case eventlog.TagReset:
			s.Resets++
		case eventlog.TagValues:
			v, err := strconv.ParseFloat(e.Payload, 64)
			if err == nil {
				r.intensity = append(r.intensity, sample{e.Elapsed, []float64{v}})
			}
		case eventlog.TagRotation:
			v, err := strconv.ParseFloat(e.Payload, 64)
			if err == nil {
				r.rotation = append(r.rotation, sample{e.Elapsed, []float64{v}})
			}
		case eventlog.TagPulseWidths:
			cmd, err := endolight.ParsePulseCommand(e.Payload)
			if err != nil {
				continue
			}
			s.Commands++
			r.widths = append(r.widths, sample{e.Elapsed, fieldTotals(cmd)})
		case eventlog.TagPhotoDiodes:
			reading, err := endolight.ParseMonitorReading(e.Payload)
			if err != nil {
				continue
			}
			s.Readings++
			values := make([]float64, len(reading.Voltages))
			for i, v := range reading.Voltages {
				values[i] = float64(v)
			}
			r.voltages = append(r.voltages, sample{e.Elapsed, values})
		}
	}

	return r
}

// fieldTotals returns the summed pulse width of each field in milliseconds
func fieldTotals(cmd endolight.PulseCommand) []float64 {
	totals := make([]float64, 2)
	for f := range totals {
		for ch := range endolight.NumLaserDiodes {
			totals[f] += float64(cmd.Width(endolight.Field(f), ch)) / 1000
		}
	}
	return totals
}

func (r *Report) lineChart(title, yName string, samples []sample, series ...string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("session=%s points=%d", r.Session, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)

	x := make([]string, len(samples))
	for i, s := range samples {
		x[i] = strconv.FormatFloat(s.elapsed.Seconds(), 'f', 3, 64)
	}
	line.SetXAxis(x)

	for i, name := range series {
		data := make([]opts.LineData, len(samples))
		for j, s := range samples {
			if i < len(s.values) {
				data[j] = opts.LineData{Value: s.values[i]}
			}
		}
		line.AddSeries(name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	return line
}

// Page builds the chart page
func (r *Report) Page() *components.Page {
	page := components.NewPage()
	page.PageTitle = "Endolight session " + r.Session

	page.AddCharts(
		r.lineChart("Measured Intensity", "Mean", r.intensity, "Intensity"),
		r.lineChart("Pulse Widths", "Total (ms)", r.widths, "Odd", "Even"),
		r.lineChart("Photodiodes", "ADC", r.voltages, "Odd PD1", "Odd PD2", "Odd PD3", "Even PD1", "Even PD2", "Even PD3"),
		r.lineChart("Rotation Mount", "Power", r.rotation, "Power"),
	)
	return page
}

// Render writes the HTML page
func (r *Report) Render(w io.Writer) error {
	return r.Page().Render(w)
}

// WriteSummary writes the summary as text
func (r *Report) WriteSummary(w io.Writer) error {
	s := r.Summary
	_, err := fmt.Fprintf(w, "Session: %s\nDuration: %s\nFrames: %d\nCommands: %d\nReadings: %d\nErrors: %d\nResets: %d\n",
		r.Session, s.Duration.Round(time.Millisecond), s.Frames, s.Commands, s.Readings, s.Errors, s.Resets)
	if err != nil {
		return err
	}

	if s.SyncedAfter > 0 {
		_, err = fmt.Fprintf(w, "Synced after %s with offset %d\n", s.SyncedAfter.Round(time.Millisecond), s.Offset)
		if err != nil {
			return err
		}
	}

	for _, m := range s.Modes {
		_, err = fmt.Fprintf(w, "%s\t%s\n", eventlog.FormatElapsed(m.Elapsed), m.Mode)
		if err != nil {
			return err
		}
	}
	return nil
}
