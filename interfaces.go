/*
 * interfaces.go, part of matflow.
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

package matflow

import (
	"errors"
	"fmt"
	"strings"
)

//Decorator is the interface for errors that all packages in this library implement.
//The Decorate method allows to add and retrieve info from the error, without
//changing its type or wrapping it around something else.
type Decorator interface {
	Error() string
	//Decorate adds deco to the decoration slice and returns the slice. If passed an empty
	//string it just returns the current value.
	Decorate(deco string) []string
}

//Error is the error type returned by the root package. It carries the offending file
//name (or the empty string), the decoration slice with the functions in the calling
//stack, and whether the error is critical.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
	err      error
}

//Error returns a string with an error message.
func (err *Error) Error() string {
	msg := err.message
	if err.filename != "" {
		msg = fmt.Sprintf("%s: %s", err.filename, msg)
	}
	if len(err.deco) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(err.deco, " <- "))
	}
	return msg
}

//Decorate adds the dec string to the decoration slice and returns the resulting slice.
func (err *Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

//Critical returns whether the error is critical or it can be ignored.
func (err *Error) Critical() bool { return err.critical }

//FileName returns the file that caused the error, or the empty string.
func (err *Error) FileName() string { return err.filename }

func (err *Error) Unwrap() error { return err.err }

//NewError returns a critical *Error with the given message, originated in function caller.
func NewError(message, filename, caller string) *Error {
	return &Error{message: message, filename: filename, deco: []string{caller}, critical: true}
}

//wrapError wraps err in an *Error, keeping it reachable with errors.Is/As.
func wrapError(err error, filename, caller string) *Error {
	return &Error{message: err.Error(), filename: filename, deco: []string{caller}, critical: true, err: err}
}

//errDecorate decorates err with the caller's name if err implements Decorator.
//Other errors are wrapped in an *Error.
func errDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	var d Decorator
	if errors.As(err, &d) {
		d.Decorate(caller)
		return err
	}
	return wrapError(err, "", caller)
}

//Sentinel errors for the structure-level operations.
var (
	ErrOutOfRange   = errors.New("site index out of range")
	ErrBadLattice   = errors.New("lattice must be a 3x3 non-singular matrix")
	ErrUnknownElem  = errors.New("unknown element")
	ErrMalformedDoc = errors.New("malformed structure document")
)
