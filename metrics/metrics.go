/*
 * metrics.go, part of matflow.
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

//Package metrics counts what matflow does (structures enumerated, workflows
//submitted, documents published...) in a Prometheus registry, which can be
//written to a file for the node exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "matflow"

//Registry holds the matflow counters only, not the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	//StructuresEnumerated counts the distinct structures produced per template.
	StructuresEnumerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "structures_enumerated_total",
		Help:      "Distinct structures produced by template enumerations.",
	}, []string{"template"})
	//WorkflowsBuilt counts the workflows generated, added to a launchpad or not.
	WorkflowsBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflows_built_total",
		Help:      "Workflows generated.",
	})
	//WorkflowsSubmitted counts the workflows added to a launchpad.
	WorkflowsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflows_submitted_total",
		Help:      "Workflows added to a launchpad.",
	})
	//DocumentsPublished counts the documents written to external databases.
	DocumentsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_published_total",
		Help:      "Documents written to collaborator databases.",
	}, []string{"target"})
	//BaderAnalyses counts the Bader analyses stored, by result.
	BaderAnalyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bader_analyses_total",
		Help:      "Bader analyses attempted, by result.",
	}, []string{"result"})
	//FireworksUpdated counts the fireworks modified by defuse and priority commands.
	FireworksUpdated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fireworks_updated_total",
		Help:      "Fireworks modified in a launchpad, by operation.",
	}, []string{"operation"})
)

func init() {
	Registry.MustRegister(StructuresEnumerated, WorkflowsBuilt, WorkflowsSubmitted, DocumentsPublished, BaderAnalyses, FireworksUpdated)
}

//WriteFile writes the current values of the counters to path, in the Prometheus
//text format. The file is replaced atomically.
func WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

//Value returns the current value of a counter. For counter vectors, it returns
//the sum over all the label values.
func Value(c prometheus.Collector) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	total := 0.0
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err == nil && pb.Counter != nil {
			total += pb.Counter.GetValue()
		}
	}
	return total
}
