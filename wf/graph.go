/*
 * graph.go, part of matflow.
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
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

//ErrCycle is returned for workflows whose links are not a DAG.
var ErrCycle = errors.New("workflow links contain a cycle")

//node wraps a firework to implement graph.Node
type node struct {
	*Firework
}

func (N node) ID() int64 {
	return int64(N.Firework.ID)
}

//link is a parent -> child dependency, implements graph.Edge
type link struct {
	parent, child node
}

func (L link) From() graph.Node {
	return L.parent
}

func (L link) To() graph.Node {
	return L.child
}

func (L link) ReversedEdge() graph.Edge {
	return link{parent: L.child, child: L.parent}
}

//Graph returns the workflow as a gonum directed graph, with one node per firework.
func (W *Workflow) Graph() (*simple.DirectedGraph, error) {
	g := simple.NewDirectedGraph()
	nodes := make(map[int]node, len(W.Fireworks))
	for _, f := range W.Fireworks {
		if _, ok := nodes[f.ID]; ok {
			return nil, fmt.Errorf("wf: duplicated firework id %d", f.ID)
		}
		n := node{f}
		nodes[f.ID] = n
		g.AddNode(n)
	}
	for p, children := range W.Links {
		pn, ok := nodes[p]
		if !ok {
			return nil, fmt.Errorf("wf: link from unknown firework %d", p)
		}
		for _, c := range children {
			cn, ok := nodes[c]
			if !ok {
				return nil, fmt.Errorf("wf: link to unknown firework %d", c)
			}
			if c == p {
				return nil, fmt.Errorf("wf: %w: firework %d is its own parent", ErrCycle, p)
			}
			g.SetEdge(link{parent: pn, child: cn})
		}
	}
	return g, nil
}

//Validate checks that the ids are unique, that the links refer to fireworks in
//the workflow and that there are no cycles.
func (W *Workflow) Validate() error {
	_, err := W.TopoOrder()
	return err
}

//TopoOrder returns the fireworks so that every parent comes before its children.
//Ties are broken by id, so the order is deterministic.
func (W *Workflow) TopoOrder() ([]*Firework, error) {
	g, err := W.Graph()
	if err != nil {
		return nil, err
	}
	sorted, err := topo.SortStabilized(g, func(nodes []graph.Node) {
		sortNodes(nodes)
	})
	if err != nil {
		var u topo.Unorderable
		if errors.As(err, &u) {
			return nil, fmt.Errorf("wf: %s: %w", W.Name, ErrCycle)
		}
		return nil, err
	}
	ret := make([]*Firework, len(sorted))
	for i, n := range sorted {
		ret[i] = n.(node).Firework
	}
	return ret, nil
}

func sortNodes(nodes []graph.Node) {
	//insertion sort, these lists are tiny.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].ID() < nodes[j-1].ID(); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
