package rapid

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "100%"
	chartHeight = "500px"
	lineWidth   = 2
)

// ErrNoSamples is returned when a chart is requested for a run without samples.
var ErrNoSamples = errors.New("rapid: no occupancy samples recorded")

// Sample is the bag occupancy after Step actions.
type Sample struct {
	Step     uint64
	PoolSize uint64
	Unused   uint64
	Live     uint64
}

// RenderOccupancyChart writes an HTML line chart of pool size, live and
// unused slots over the run.
func RenderOccupancyChart(w io.Writer, samples []Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	labels := make([]string, len(samples))
	pool := make([]opts.LineData, len(samples))
	live := make([]opts.LineData, len(samples))
	unused := make([]opts.LineData, len(samples))

	for i, sample := range samples {
		labels[i] = strconv.FormatUint(sample.Step, 10)
		pool[i] = opts.LineData{Value: sample.PoolSize}
		live[i] = opts.LineData{Value: sample.Live}
		unused[i] = opts.LineData{Value: sample.Unused}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "indexbag occupancy",
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Bag occupancy",
			Subtitle: "Allocated, live and reusable slots per action",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Action"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Slots"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("Pool size", pool, charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}))
	line.AddSeries("Live", live, charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}))
	line.AddSeries("Unused", unused,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}),
	)

	err := line.Render(w)
	if err != nil {
		return fmt.Errorf("render occupancy chart: %w", err)
	}

	return nil
}
