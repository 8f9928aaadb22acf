package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/canal.report/internal/bridges"
)

// RenderTrace draws the distance to each bridge over time for one vessel,
// with confirmed passages marked on the x axis, and saves it to path.
func RenderTrace(t *Trace, registry *bridges.Registry, path string) error {
	if len(t.Samples) == 0 {
		return fmt.Errorf("vessel %s: no samples", t.VesselID)
	}
	t0 := t.Samples[0].At

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Vessel %s - distance to bridges", t.VesselID)
	p.X.Label.Text = "Minutes"
	p.Y.Label.Text = "Distance (m)"
	p.Add(plotter.NewGrid())

	for i, b := range registry.Ordered() {
		pts := make(plotter.XYs, 0, len(t.Samples))
		for _, s := range t.Samples {
			pts = append(pts, plotter.XY{X: s.At.Sub(t0).Minutes(), Y: s.Distances[b.ID]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		if !b.Openable() {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(b.Name, line)
	}

	if len(t.Passages) > 0 {
		marks := make(plotter.XYs, 0, len(t.Passages))
		for _, ev := range t.Passages {
			marks = append(marks, plotter.XY{X: ev.At.Sub(t0).Minutes(), Y: 0})
		}
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Shape = draw.TriangleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("passage", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
