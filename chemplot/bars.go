/*
 * bars.go, part of matflow.
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

package chemplot

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rmera/matflow"
)

//Bars draws a bar chart with a bar per label.
func Bars(labels []string, values []float64, title, ylabel, filename string) error {
	if len(labels) != len(values) {
		return fmt.Errorf("chemplot: %d labels for %d values", len(labels), len(values))
	}
	if len(values) == 0 {
		return fmt.Errorf("chemplot: nothing to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	b, err := plotter.NewBarChart(plotter.Values(values), vg.Points(14))
	if err != nil {
		return fmt.Errorf("chemplot: %w", err)
	}
	b.Color = color.RGBA{R: 0x9C, G: 0x7A, B: 0xC7, A: 255}
	b.LineStyle.Width = vg.Length(0)
	p.Add(b)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = 0.8
	p.X.Tick.Label.XAlign = -1
	width := Size
	if w := vg.Length(len(values)) * vg.Points(22); w > width {
		width = w
	}
	if err := p.Save(width, Size, filename); err != nil {
		return fmt.Errorf("chemplot: %w", err)
	}
	return nil
}

//FormulaCounts returns the reduced formulas of structs and how many
//structures have each, sorted by formula.
func FormulaCounts(structs []*matflow.Structure) ([]string, []float64) {
	counts := map[string]float64{}
	for _, s := range structs {
		counts[s.Formula()]++
	}
	formulas := make([]string, 0, len(counts))
	for f := range counts {
		formulas = append(formulas, f)
	}
	sort.Strings(formulas)
	values := make([]float64, len(formulas))
	for i, f := range formulas {
		values[i] = counts[f]
	}
	return formulas, values
}

//Compositions draws how many of the enumerated structures have each reduced formula.
func Compositions(structs []*matflow.Structure, title, filename string) error {
	formulas, values := FormulaCounts(structs)
	return Bars(formulas, values, title, "structures", filename)
}

//SiteLabels returns labels like "Mn1" for the sites of S, numbered per element.
func SiteLabels(S *matflow.Structure) []string {
	n := map[string]int{}
	ret := make([]string, S.Len())
	for i := range S.Sites {
		sp := S.Species(i)
		n[sp]++
		ret[i] = fmt.Sprintf("%s%d", sp, n[sp])
	}
	return ret
}
