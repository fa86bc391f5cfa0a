/*
 * dump.go, part of matflow.
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

package wf

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rmera/matflow/archive"
)

//Dump writes the workflows as a JSON list to w.
func Dump(w io.Writer, wfs []*Workflow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(wfs); err != nil {
		return fmt.Errorf("wf: %w", err)
	}
	return nil
}

//Load reads a JSON list of workflows, as written by Dump. A single workflow
//object is also accepted.
func Load(r io.Reader) ([]*Workflow, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("wf: %w", err)
	}
	var wfs []*Workflow
	if err := json.Unmarshal(raw, &wfs); err != nil {
		var W Workflow
		if err2 := json.Unmarshal(raw, &W); err2 != nil {
			return nil, fmt.Errorf("wf: %w", err)
		}
		wfs = []*Workflow{&W}
	}
	for _, W := range wfs {
		if err := W.Validate(); err != nil {
			return nil, err
		}
	}
	return wfs, nil
}

//DumpFile writes the workflows to the file name, zstd- or gzip-compressed if
//the name ends in .zst or .gz.
func DumpFile(name string, wfs []*Workflow) error {
	w, err := archive.Create(name)
	if err != nil {
		return err
	}
	if err := Dump(w, wfs); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

//LoadFile reads workflows written by DumpFile.
func LoadFile(name string) ([]*Workflow, error) {
	r, err := archive.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Load(r)
}
