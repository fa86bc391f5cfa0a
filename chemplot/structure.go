/*
 * structure.go, part of matflow.
 *
 * Copyright 2021 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

//Package chemplot draws quick views of structures and of the results of
//enumerations and charge analyses, as PNG, SVG or PDF files (the format is
//taken from the file extension).
package chemplot

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/rmera/matflow"
)

//Size is the width and height of the saved plots.
var Size = 12 * vg.Centimeter

var axisNames = [3]string{"x", "y", "z"}

//ElementColor returns the Jmol color of the element, or gray for unknown symbols.
func ElementColor(symbol string) color.Color {
	colors, _ := matflow.ElementColors("Jmol")
	c, ok := colors[symbol]
	if !ok {
		return color.Gray{Y: 128}
	}
	return color.RGBA{R: toByte(c[0]), G: toByte(c[1]), B: toByte(c[2]), A: 255}
}

func toByte(f float64) uint8 {
	v := f * 256
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}

//Projection draws the structure projected along the cartesian axis (0, 1 or 2),
//with the sites colored by element and sized by covalent radius, and the
//edges of the unit cell.
func Projection(S *matflow.Structure, axis int, title, filename string) error {
	if axis < 0 || axis > 2 {
		return fmt.Errorf("chemplot: invalid axis %d", axis)
	}
	if S.Len() == 0 {
		return fmt.Errorf("chemplot: empty structure")
	}
	h, v := (axis+1)%3, (axis+2)%3
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = axisNames[h] + " (Å)"
	p.Y.Label.Text = axisNames[v] + " (Å)"
	p.Add(plotter.NewGrid())
	cell, err := cellEdges(S.Lattice, h, v)
	if err != nil {
		return err
	}
	for _, l := range cell {
		p.Add(l)
	}
	bySpecies := map[string]plotter.XYs{}
	var order []string
	for i := range S.Sites {
		sp := S.Species(i)
		if _, ok := bySpecies[sp]; !ok {
			order = append(order, sp)
		}
		c := S.CartCoord(i)
		bySpecies[sp] = append(bySpecies[sp], plotter.XY{X: c[h], Y: c[v]})
	}
	for _, sp := range order {
		s, err := plotter.NewScatter(bySpecies[sp])
		if err != nil {
			return fmt.Errorf("chemplot: %w", err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Color = ElementColor(sp)
		s.GlyphStyle.Radius = vg.Points(4)
		if e, err := matflow.ElementBySymbol(sp); err == nil && e.CovRad > 0 {
			s.GlyphStyle.Radius = vg.Points(3 + 3*e.CovRad)
		}
		p.Add(s)
		p.Legend.Add(sp, s)
	}
	p.Legend.Top = true
	if err := p.Save(Size, Size, filename); err != nil {
		return fmt.Errorf("chemplot: %w", err)
	}
	return nil
}

//cellEdges returns the 12 edges of the cell projected on the (h, v) plane.
func cellEdges(L *matflow.Lattice, h, v int) ([]*plotter.Line, error) {
	var corners [8][3]float64
	for i := 0; i < 8; i++ {
		corners[i] = L.FracToCart([3]float64{float64(i & 1), float64(i >> 1 & 1), float64(i >> 2 & 1)})
	}
	var ret []*plotter.Line
	for i := 0; i < 8; i++ {
		for _, bit := range []int{1, 2, 4} {
			if i&bit != 0 {
				continue
			}
			j := i | bit
			l, err := plotter.NewLine(plotter.XYs{
				{X: corners[i][h], Y: corners[i][v]},
				{X: corners[j][h], Y: corners[j][v]},
			})
			if err != nil {
				return nil, fmt.Errorf("chemplot: %w", err)
			}
			l.LineStyle.Color = color.Gray{Y: 90}
			l.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
			ret = append(ret, l)
		}
	}
	return ret, nil
}
