/*
 * client_test.go, part of matflow.
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

package mpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const rutileDoc = `{"data":[{"structure":{"@module":"pymatgen.core.structure","@class":"Structure",
"lattice":{"matrix":[[4.594,0,0],[0,4.594,0],[0,0,2.959]]},
"sites":[
{"species":[{"element":"Ti","occu":1}],"abc":[0,0,0]},
{"species":[{"element":"Ti","occu":1}],"abc":[0.5,0.5,0.5]},
{"species":[{"element":"O","occu":1}],"abc":[0.305,0.305,0]},
{"species":[{"element":"O","occu":1}],"abc":[0.695,0.695,0]},
{"species":[{"element":"O","occu":1}],"abc":[0.195,0.805,0.5]},
{"species":[{"element":"O","occu":1}],"abc":[0.805,0.195,0.5]}]}}],"meta":{"total_doc":1}}`

func testServer(Te *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"detail":"bad key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("material_ids") {
		case "mp-2657":
			w.Write([]byte(rutileDoc))
		case "mp-1,mp-2":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"material_id": "mp-1"}, {"material_id": "mp-2"}}})
		default:
			w.Write([]byte(`{"data":[],"meta":{"total_doc":0}}`))
		}
	}))
}

func TestStructureByMaterialID(Te *testing.T) {
	srv := testServer(Te)
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret", Retries: 1})
	if err != nil {
		Te.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()
	S, err := c.StructureByMaterialID(ctx, "mp-2657")
	if err != nil {
		Te.Fatal(err)
	}
	if S.Formula() != "TiO2" || S.Len() != 6 {
		Te.Errorf("unexpected structure %s", S.Formula())
	}
	if _, err := c.StructureByMaterialID(ctx, "mp-0"); !errors.Is(err, ErrNotFound) {
		Te.Errorf("expected ErrNotFound, got %v", err)
	}
	docs, err := c.Summary(ctx, []string{"mp-1", "mp-2"}, "material_id")
	if err != nil || len(docs) != 2 {
		Te.Errorf("Summary returned %v, %v", docs, err)
	}
}

func TestAuthErrors(Te *testing.T) {
	srv := testServer(Te)
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, APIKey: "wrong", Retries: 1})
	if err != nil {
		Te.Fatal(err)
	}
	defer c.Close()
	if _, err := c.StructureByMaterialID(context.Background(), "mp-2657"); err == nil {
		Te.Error("expected an HTTP error with a bad key")
	}
	Te.Setenv(APIKeyEnv, "")
	if _, err := New(Config{}); !errors.Is(err, ErrNoAPIKey) {
		Te.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}
