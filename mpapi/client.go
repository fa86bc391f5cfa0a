/*
 * client.go, part of matflow.
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

//Package mpapi is a small client for the Materials Project REST API. It only
//covers what matflow needs: structures and summary documents by material id.
package mpapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/rmera/matflow"
	"github.com/rmera/matflow/ctxlog"
)

//DefaultBaseURL is the public Materials Project API.
const DefaultBaseURL = "https://api.materialsproject.org"

//APIKeyEnv is the environment variable read for the API key when none is given.
const APIKeyEnv = "MP_API_KEY"

var (
	//ErrNotFound is returned when the API has no data for a material id.
	ErrNotFound = errors.New("material not found")
	//ErrNoAPIKey is returned by New when no key is given or found in the environment.
	ErrNoAPIKey = errors.New("no Materials Project API key")
)

//Config holds the client parameters. Empty fields take the defaults.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

//Client queries the Materials Project.
type Client struct {
	r *resty.Client
}

//response is the envelope of every API answer.
type response struct {
	Data []map[string]any `json:"data"`
	Meta struct {
		TotalDoc int `json:"total_doc"`
	} `json:"meta"`
}

//New returns a client for the configuration C.
func New(C Config) (*Client, error) {
	if C.APIKey == "" {
		C.APIKey = os.Getenv(APIKeyEnv)
	}
	if C.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if C.BaseURL == "" {
		C.BaseURL = DefaultBaseURL
	}
	if C.Timeout == 0 {
		C.Timeout = 60 * time.Second
	}
	if C.Retries == 0 {
		C.Retries = 3
	}
	r := resty.New().
		SetBaseURL(strings.TrimRight(C.BaseURL, "/")).
		SetHeader("X-API-KEY", C.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(C.Timeout).
		SetRetryCount(C.Retries)
	return &Client{r: r}, nil
}

//Close releases the resources of the underlying HTTP client.
func (c *Client) Close() error {
	return c.r.Close()
}

//Summary returns the summary documents for ids, restricted to fields (all fields if
//fields is empty).
func (c *Client) Summary(ctx context.Context, ids []string, fields ...string) ([]map[string]any, error) {
	return c.get(ctx, "/materials/summary/", ids, fields)
}

//StructureByMaterialID returns the structure of the material id.
func (c *Client) StructureByMaterialID(ctx context.Context, id string) (*matflow.Structure, error) {
	docs, err := c.get(ctx, "/materials/core/", []string{id}, []string{"structure"})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("mpapi: %s: %w", id, ErrNotFound)
	}
	d, ok := docs[0]["structure"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mpapi: %s: document has no structure", id)
	}
	S, err := matflow.StructureFromDict(d)
	if err != nil {
		return nil, fmt.Errorf("mpapi: %s: %w", id, err)
	}
	return S, nil
}

func (c *Client) get(ctx context.Context, path string, ids, fields []string) ([]map[string]any, error) {
	var out response
	req := c.r.R().
		SetContext(ctx).
		SetQueryParam("material_ids", strings.Join(ids, ",")).
		SetResult(&out)
	if len(fields) > 0 {
		req.SetQueryParam("_fields", strings.Join(fields, ","))
	} else {
		req.SetQueryParam("_all_fields", "true")
	}
	ctxlog.FromContext(ctx).Debug("materials project query", "path", path, "ids", ids)
	res, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("mpapi: %s: %w", path, err)
	}
	if res.IsError() {
		if res.StatusCode() == 404 {
			return nil, fmt.Errorf("mpapi: %s: %w", strings.Join(ids, ","), ErrNotFound)
		}
		return nil, fmt.Errorf("mpapi: %s: HTTP %d: %s", path, res.StatusCode(), strings.TrimSpace(res.String()))
	}
	return out.Data, nil
}
