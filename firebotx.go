// Control surface plots

package main

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/fuzzy"
)

var surfaceErrors = []float64{-1, 0, 1}

func surfaceVariable(eng *fuzzy.Engine, name string) (*fuzzy.Variable, error) {
	for _, v := range eng.RuleBase().Inputs() {
		if v.Name() == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", fuzzy.ErrUnknownVariable, name)
}

// surfaceLines samples one output against proximity, one line per error
// value. Points with an undefined output are left out.
func surfaceLines(eng *fuzzy.Engine, output string, flameCenter float64) ([]plotter.XYs, error) {
	prox, err := surfaceVariable(eng, config.VarProximity)
	if err != nil {
		return nil, err
	}
	xs := prox.Universe().Points()
	lines := make([]plotter.XYs, len(surfaceErrors))
	for i, e := range surfaceErrors {
		for _, x := range xs {
			out, err := eng.Evaluate(fuzzy.Inputs{
				config.VarFlameCenter: flameCenter,
				config.VarError:       e,
				config.VarProximity:   x,
			})
			y, ok := out[output]
			if !ok {
				if err == nil {
					return nil, fmt.Errorf("%w: %q", fuzzy.ErrUnknownVariable, output)
				}
				continue
			}
			lines[i] = append(lines[i], plotter.XY{X: x, Y: y})
		}
	}
	return lines, nil
}

func surfacePlot(eng *fuzzy.Engine, output string, flameCenter float64) (*plot.Plot, error) {
	lines, err := surfaceLines(eng, output, flameCenter)
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (flame center %v)", output, flameCenter)
	p.X.Label.Text = "Proximity [cm]"
	p.X.Label.Padding = vg.Points(5)
	p.Y.Label.Text = "Duty [%]"
	p.Y.Label.Padding = vg.Points(5)
	p.Y.Min = 0
	p.Y.Max = 100
	p.Add(plotter.NewGrid())
	colors := []color.Color{
		color.RGBA{R: 200, A: 255},
		color.RGBA{A: 255},
		color.RGBA{B: 200, A: 255},
	}
	for i, data := range lines {
		if len(data) == 0 {
			continue
		}
		l, err := plotter.NewLine(data)
		if err != nil {
			return nil, err
		}
		l.Color = colors[i%len(colors)]
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("error %v", surfaceErrors[i]), l)
	}
	p.Legend.Top = true
	return p, nil
}

// plotSurface writes a two-page PDF with the left and right motor duties.
func plotSurface(w io.Writer, eng *fuzzy.Engine, flameCenter float64) error {
	c := vgpdf.New(8.5*vg.Inch, 4*vg.Inch)
	c.EmbedFonts(true)
	for i, output := range []string{config.VarLeftMotor, config.VarRightMotor} {
		p, err := surfacePlot(eng, output, flameCenter)
		if err != nil {
			return err
		}
		if i > 0 {
			c.NextPage()
		}
		dc := draw.New(c)
		dc = draw.Crop(dc, 1*vg.Millimeter, -1*vg.Millimeter, 1*vg.Millimeter, -1*vg.Millimeter)
		p.Draw(dc)
	}
	_, err := c.WriteTo(w)
	if err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
