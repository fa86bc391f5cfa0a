/*
 * histo_test.go, part of matflow.
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

package histo

import (
	"fmt"
	"testing"
)

func TestData(Te *testing.T) {
	D := NewData(Dividers(0, 4, 4), []float64{0.5, 3.5, 9})
	if D.Total() != 2 {
		Te.Errorf("expected 2 points within the dividers, got %d", D.Total())
	}
	D.AddData(1.5, 1.7, 10, -1)
	fmt.Println(D.Bins())
	want := []float64{1, 2, 0, 1}
	for i := range want {
		if D.Bins()[i] != want[i] {
			Te.Errorf("bin %d: %f, expected %f", i, D.Bins()[i], want[i])
		}
	}
	D.Scale(0.5)
	if D.Sum() != 2 {
		Te.Errorf("scaled histogram sums to %f", D.Sum())
	}
}

func TestAbsDiff(Te *testing.T) {
	div := Dividers(0, 3, 3)
	A := NewMatrix(2, 2, div)
	B := NewMatrix(2, 2, div)
	A.AddData(0, 1, 0.5, 1.5)
	B.AddData(0, 1, 0.5, 2.5)
	B.AddData(1, 1, 0.1)
	B.ScaleRow(1, 3)
	D, err := AbsDiff(A, B)
	if err != nil {
		Te.Fatal(err)
	}
	if s := D.Sum(); s != 5 {
		Te.Errorf("expected a difference of 5, got %f", s)
	}
	if _, err := AbsDiff(A, NewMatrix(1, 2, div)); err == nil {
		Te.Error("expected an error for different dimensions")
	}
	if _, err := AbsDiff(A, NewMatrix(2, 2, Dividers(0, 4, 3))); err == nil {
		Te.Error("expected an error for different dividers")
	}
	defer func() {
		if recover() == nil {
			Te.Error("expected a panic for an element out of range")
		}
	}()
	A.View(2, 0)
}
