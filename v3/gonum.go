/*
 * gonum.go, part of matflow.
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

//Package v3 provides a set of vectors in 3D space, backed by a gonum Dense.
//Lattices, cartesian and fractional coordinates in matflow are all v3 matrices.
//Within the package a "vector" is a row vector, i.e. the coordinates of
//a point (or a lattice vector) in 3D space.
package v3

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const appzero float64 = 1e-12 //everything equal or less than this is considered zero.

//Matrix is a set of vectors in 3D space.
type Matrix struct {
	*mat.Dense
}

//Dense2Matrix wraps a gonum Dense. It panics if A doesn't have 3 columns.
func Dense2Matrix(A *mat.Dense) *Matrix {
	_, c := A.Dims()
	if c != 3 {
		panic(ErrNotXx3Matrix)
	}
	return &Matrix{A}
}

//NewMatrix generates and returns a Matrix with 3 columns from data.
func NewMatrix(data []float64) (*Matrix, error) {
	const cols int = 3
	l := len(data)
	rows := l / cols
	if l%cols != 0 {
		return nil, Error{fmt.Sprintf("input slice length %d not divisible by %d", l, cols), []string{"NewMatrix"}, true}
	}
	if rows == 0 {
		return nil, Error{"empty input slice", []string{"NewMatrix"}, true}
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

//Zeros returns a zero-filled Matrix with vecs vectors.
func Zeros(vecs int) *Matrix {
	return &Matrix{mat.NewDense(vecs, 3, nil)}
}

//NVecs returns the number of vectors in F.
func (F *Matrix) NVecs() int {
	r, c := F.Dims()
	if c != 3 {
		panic(ErrNotXx3Matrix)
	}
	return r
}

//VecView returns a view of the ith vector of F. Changes in the view
//change F.
func (F *Matrix) VecView(i int) *Matrix {
	return &Matrix{F.Dense.Slice(i, i+1, 0, 3).(*mat.Dense)}
}

//Vec returns a copy of the ith vector of F as an array.
func (F *Matrix) Vec(i int) [3]float64 {
	return [3]float64{F.At(i, 0), F.At(i, 1), F.At(i, 2)}
}

//SetVec sets the ith vector of F to v.
func (F *Matrix) SetVec(i int, v [3]float64) {
	for j := 0; j < 3; j++ {
		F.Set(i, j, v[j])
	}
}

//Copy returns a deep copy of F.
func (F *Matrix) Copy() *Matrix {
	return &Matrix{mat.DenseCopyOf(F.Dense)}
}

//SomeVecs returns a new matrix containing the vectors of F with the indexes
//in clist, in the order given.
func (F *Matrix) SomeVecs(clist []int) (*Matrix, error) {
	n := F.NVecs()
	ret := Zeros(len(clist))
	for k, v := range clist {
		if v < 0 || v >= n {
			return nil, Error{fmt.Sprintf("vector %d out of range (%d vectors)", v, n), []string{"SomeVecs"}, true}
		}
		ret.SetVec(k, F.Vec(v))
	}
	return ret, nil
}

//Stack returns a new matrix with the vectors of A followed by those of B.
func Stack(A, B *Matrix) *Matrix {
	ar := A.NVecs()
	br := B.NVecs()
	ret := Zeros(ar + br)
	for i := 0; i < ar; i++ {
		ret.SetVec(i, A.Vec(i))
	}
	for i := 0; i < br; i++ {
		ret.SetVec(ar+i, B.Vec(i))
	}
	return ret
}

//Det returns the determinant of a 3x3 matrix.
func (F *Matrix) Det() float64 {
	r, c := F.Dims()
	if r != 3 || c != 3 {
		panic(ErrDeterminant)
	}
	return mat.Det(F.Dense)
}

//Inverse returns the inverse of a 3x3 matrix, or an error if it is singular.
func (F *Matrix) Inverse() (*Matrix, error) {
	if math.Abs(F.Det()) <= appzero {
		return nil, Error{"singular matrix", []string{"Inverse"}, true}
	}
	inv := mat.NewDense(3, 3, nil)
	if err := inv.Inverse(F.Dense); err != nil {
		return nil, Error{err.Error(), []string{"Inverse"}, true}
	}
	return &Matrix{inv}, nil
}

//VecNorm returns the euclidean norm of the ith vector of F.
func (F *Matrix) VecNorm(i int) float64 {
	v := F.Vec(i)
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

//String returns a string with one vector per line.
func (F *Matrix) String() string {
	n := F.NVecs()
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v := F.Vec(i)
		lines = append(lines, fmt.Sprintf("%10.6f %10.6f %10.6f", v[0], v[1], v[2]))
	}
	return strings.Join(lines, "\n")
}

//Dot returns the dot product of two 3D vectors.
func Dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

//Cross returns the cross product of two 3D vectors.
func Cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

//Norm returns the euclidean norm of a 3D vector.
func Norm(a [3]float64) float64 {
	return math.Sqrt(Dot(a, a))
}

//Error is the same as matflow.Error but avoids a circular import.
type Error struct {
	message  string
	deco     []string
	critical bool
}

//Error returns a string with an error message.
func (err Error) Error() string {
	return err.message
}

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

//Critical return whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }

//PanicMsg is a message used for panics, even though it does satisfy the error interface.
//for errors use Error.
type PanicMsg string

func (v PanicMsg) Error() string { return string(v) }

const (
	ErrNotXx3Matrix = PanicMsg("matflow/v3: A Matrix should have 3 columns")
	ErrDeterminant  = PanicMsg("matflow/v3: Determinants are only available for 3x3 matrices")
	ErrShape        = PanicMsg("matflow/v3: Dimension mismatch")
)
