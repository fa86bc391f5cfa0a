/*
 * elastic.go, part of matflow.
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

//Package elastic manages the elastic constant workflows in a launchpad: it
//defuses the workflows of materials that already have elasticity data and
//raises the priority of the cheapest deformation sets.
package elastic

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rmera/matflow/ctxlog"
	"github.com/rmera/matflow/launchpad"
	"github.com/rmera/matflow/metrics"
	"github.com/rmera/matflow/store"
)

//ChunkSize is the number of workflows defused between progress messages.
const ChunkSize = 300

//Chunk splits items into consecutive slices of at most size elements. The
//slices share the storage of items.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var ret [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		ret = append(ret, items[i:end:end])
	}
	return ret
}

//WithElasticityData returns the material ids (task_id) in materials that have elasticity data.
func WithElasticityData(ctx context.Context, materials store.Store) ([]string, error) {
	vals, err := materials.Distinct(ctx, "task_id", store.Doc{"elasticity": map[string]any{"$ne": nil}})
	if err != nil {
		return nil, fmt.Errorf("elastic: %w", err)
	}
	ret := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			ret = append(ret, s)
		}
	}
	return ret, nil
}

//DefuseWithElasticityData defuses the workflows tagged with the id of a material
//that already has elasticity data, so they can be reignited later if needed. It
//returns the material ids whose workflows were defused.
func DefuseWithElasticityData(ctx context.Context, materials store.Store, lpad *launchpad.LaunchPad) ([]string, error) {
	log := ctxlog.FromContext(ctx)
	mpids, err := WithElasticityData(ctx, materials)
	if err != nil {
		return nil, err
	}
	tags, err := lpad.DistinctTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("elastic: %w", err)
	}
	tagged := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagged[t] = true
	}
	var todo []string
	for _, id := range mpids {
		if tagged[id] {
			todo = append(todo, id)
		}
	}
	sort.Strings(todo)
	var defused []string
	for _, chunk := range Chunk(todo, ChunkSize) {
		for _, mpid := range chunk {
			fw, err := lpad.FindOne(ctx, store.Doc{"spec.tags": mpid}, "fw_id")
			if err == nil {
				id, _ := store.Normalize(fw["fw_id"]).(float64)
				fwID := int(id)
				err = lpad.DefuseWF(ctx, fwID)
				if err == nil {
					log.Debug("defused workflow", "fw_id", fwID, "mp_id", mpid)
				}
			}
			if errors.Is(err, launchpad.ErrNotFound) {
				log.Warn("no workflow to defuse", "mp_id", mpid, "error", err)
				continue
			}
			if err != nil {
				return defused, fmt.Errorf("elastic: %s: %w", mpid, err)
			}
			metrics.FireworksUpdated.WithLabelValues("defuse").Inc()
			defused = append(defused, mpid)
		}
		log.Info("defusing workflows with elasticity data", "done", len(defused), "total", len(todo))
	}
	return defused, nil
}

//Priority increments applied by SetPriority.
const (
	MinimalPriority            = 2000
	MinimalFullStencilPriority = 1000
	DeformationPriority        = 1
)

//SetPriority raises the priority of the elastic fireworks: those of the minimal
//category most, then those of the minimal full stencil, and, within the minimal
//category, the deformations before the rest. It returns the number of fireworks
//modified by each of the three updates.
func SetPriority(ctx context.Context, lpad *launchpad.LaunchPad) ([3]int, error) {
	var ret [3]int
	updates := []struct {
		criteria store.Doc
		inc      int
	}{
		{store.Doc{"spec.elastic_category": "minimal"}, MinimalPriority},
		{store.Doc{"spec.elastic_category": "minimal_full_stencil"}, MinimalFullStencilPriority},
		{store.Doc{"spec.elastic_category": "minimal", "name": map[string]any{"$regex": "deformation"}}, DeformationPriority},
	}
	for i, u := range updates {
		n, err := lpad.UpdateMany(ctx, u.criteria, store.Doc{"$inc": map[string]any{"spec._priority": u.inc}})
		if err != nil {
			return ret, fmt.Errorf("elastic: %w", err)
		}
		ret[i] = n
		metrics.FireworksUpdated.WithLabelValues("priority").Add(float64(n))
	}
	ctxlog.FromContext(ctx).Info("set elastic priorities", "minimal", ret[0], "minimal_full_stencil", ret[1], "deformations", ret[2])
	return ret, nil
}
