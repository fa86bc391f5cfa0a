/*
 * pool.go, part of matflow.
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
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

//GenerateAll maps gen over inputs with a fixed number of workers (4 if workers < 1).
//The workflows are returned in the order of the inputs. The first error stops
//the remaining work and is returned.
func GenerateAll[T any](ctx context.Context, inputs []T, gen func(T) (*Workflow, error), workers int) ([]*Workflow, error) {
	if workers < 1 {
		workers = 4
	}
	ret := make([]*Workflow, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			W, err := gen(in)
			if err != nil {
				return fmt.Errorf("wf: input %d: %w", i, err)
			}
			ret[i] = W //each index is written by one goroutine only.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
