/*
 * histo.go, part of matflow.
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

//Package histo provides histograms, and matrices of histograms sharing the same
//dividers. matflow uses them as pair-distance fingerprints of crystal structures:
//the histogram in row i, column j holds the distances from atoms of the ith
//element to atoms of the jth.
package histo

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

//Dividers returns evenly spaced dividers from min to max (both included) for nbins bins.
func Dividers(min, max float64, nbins int) []float64 {
	ret := make([]float64, nbins+1)
	return floats.Span(ret, min, max)
}

//Data is a histogram.
type Data struct {
	total    int
	dividers []float64
	histo    []float64
}

//NewData returns a histogram of rawdata (which can be nil) with the given
//dividers. Values outside the dividers are left out.
func NewData(dividers []float64, rawdata []float64) *Data {
	d := &Data{dividers: append([]float64(nil), dividers...)}
	d.ReHisto(rawdata)
	return d
}

//ReHisto replaces the contents of the histogram with a histogram of rawdata.
func (D *Data) ReHisto(rawdata []float64) {
	rawdata = append([]float64(nil), rawdata...)
	sort.Float64s(rawdata)
	//stat.Histogram panics with values out of the dividers.
	lo := sort.SearchFloat64s(rawdata, D.dividers[0])
	hi := sort.SearchFloat64s(rawdata, D.dividers[len(D.dividers)-1])
	rawdata = rawdata[lo:hi]
	D.total = len(rawdata)
	D.histo = stat.Histogram(nil, D.dividers, rawdata, nil)
}

//AddData adds the given points to the histogram.
func (D *Data) AddData(point ...float64) {
	for _, v := range point {
		j := sort.SearchFloat64s(D.dividers, v)
		if j < len(D.dividers) && D.dividers[j] == v {
			j++
		}
		if j == 0 || j >= len(D.dividers) {
			continue
		}
		D.histo[j-1]++
		D.total++
	}
}

//Total returns the number of points added to the histogram.
func (D *Data) Total() int {
	return D.total
}

//Bins returns the bins of the histogram. Changes to the slice affect the histogram.
func (D *Data) Bins() []float64 {
	return D.histo
}

//Scale multiplies every bin by f.
func (D *Data) Scale(f float64) {
	floats.Scale(f, D.histo)
}

//Sum returns the sum of the bins.
func (D *Data) Sum() float64 {
	return floats.Sum(D.histo)
}

//AbsDiff sets the bins of the receiver to |a - b|.
func (D *Data) AbsDiff(a, b *Data) error {
	if !floats.Equal(a.dividers, b.dividers) {
		return fmt.Errorf("histo: different dividers")
	}
	D.dividers = append(D.dividers[:0], a.dividers...)
	if len(D.histo) != len(a.histo) {
		D.histo = make([]float64, len(a.histo))
	}
	for i := range a.histo {
		D.histo[i] = math.Abs(a.histo[i] - b.histo[i])
	}
	D.total = a.total + b.total
	return nil
}

//Matrix is a square or rectangular matrix of histograms with the same dividers.
type Matrix struct {
	rows, cols int
	d          []*Data //row-major
	dividers   []float64
}

//NewMatrix returns a r x c matrix of empty histograms with the given dividers.
func NewMatrix(r, c int, dividers []float64) *Matrix {
	M := &Matrix{rows: r, cols: c, d: make([]*Data, r*c), dividers: append([]float64(nil), dividers...)}
	for i := range M.d {
		M.d[i] = NewData(M.dividers, nil)
	}
	return M
}

//Dims returns the number of rows and columns of the matrix.
func (M *Matrix) Dims() (int, int) {
	return M.rows, M.cols
}

//Dividers returns a copy of the dividers of the histograms.
func (M *Matrix) Dividers() []float64 {
	return append([]float64(nil), M.dividers...)
}

func (M *Matrix) index(r, c int) int {
	if r < 0 || r >= M.rows || c < 0 || c >= M.cols {
		panic(fmt.Sprintf("histo: element %d,%d out of a %dx%d matrix", r, c, M.rows, M.cols))
	}
	return M.cols*r + c
}

//View returns the histogram in the position r,c. Changes to it are reflected
//in the matrix.
func (M *Matrix) View(r, c int) *Data {
	return M.d[M.index(r, c)]
}

//AddData adds the points to the histogram in r,c.
func (M *Matrix) AddData(r, c int, point ...float64) {
	M.d[M.index(r, c)].AddData(point...)
}

//ScaleRow multiplies every histogram of row r by f.
func (M *Matrix) ScaleRow(r int, f float64) {
	for c := 0; c < M.cols; c++ {
		M.View(r, c).Scale(f)
	}
}

//Sum returns the sum of all the bins of all the histograms.
func (M *Matrix) Sum() float64 {
	var s float64
	for _, v := range M.d {
		s += v.Sum()
	}
	return s
}

//AbsDiff returns the element-wise absolute difference between a and b.
func AbsDiff(a, b *Matrix) (*Matrix, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("histo: %dx%d and %dx%d matrices", a.rows, a.cols, b.rows, b.cols)
	}
	ret := NewMatrix(a.rows, a.cols, a.dividers)
	for i := range ret.d {
		if err := ret.d[i].AbsDiff(a.d[i], b.d[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}
