/*
 * archive_test.go, part of matflow.
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

package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type doc struct {
	Formula string    `json:"formula"`
	Energy  float64   `json:"energy"`
	Abc     []float64 `json:"abc"`
}

func TestDumpLoad(Te *testing.T) {
	dir := Te.TempDir()
	in := []doc{{"MnSbO4", -45.3, []float64{4.6, 4.6, 3}}, {"Mn9Sb7O32", -370.1, []float64{9.2, 9.2, 6}}}
	for _, name := range []string{"d.json", "d.json.gz", "d.json.zst"} {
		p := filepath.Join(dir, name)
		if err := DumpJSON(p, in); err != nil {
			Te.Fatal(err)
		}
		var out []doc
		if err := LoadJSON(p, &out); err != nil {
			Te.Fatal(err)
		}
		if len(out) != 2 || out[1].Formula != "Mn9Sb7O32" || out[0].Abc[2] != 3 {
			Te.Errorf("%s: round trip gave %v", name, out)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "d.json.zst"))
	if err != nil {
		Te.Fatal(err)
	}
	if bytes.Contains(raw, []byte("MnSbO4")) {
		Te.Error("the .zst dump doesn't seem compressed")
	}
	if err := LoadJSON(filepath.Join(dir, "missing.json"), &[]doc{}); err == nil {
		Te.Error("expected an error for a missing file")
	}
}

func TestCompressionFor(Te *testing.T) {
	for name, want := range map[string]Compression{"a.json": None, "a.json.zst": Zstd, "a.zstd": Zstd, "b.gz": Gzip} {
		if got := CompressionFor(name); got != want {
			Te.Errorf("CompressionFor(%s) = %v, want %v", name, got, want)
		}
	}
}

//fakeS3 stores the bodies of PUT requests, by path.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (F *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPut {
		return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
	}
	body, _ := io.ReadAll(req.Body)
	F.mu.Lock()
	F.objects[req.URL.Path] = body
	F.types[req.URL.Path] = req.Header.Get("Content-Type")
	F.mu.Unlock()
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{"Etag": {"\"e\""}}}, nil
}

func TestUploadFile(Te *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	c := S3Config{Bucket: "collab", Endpoint: "https://s3.test.local", Prefix: "exports", PathStyle: true, AccessKeyID: "AKIA", SecretAccessKey: "secret"}
	U, err := NewUploader(context.Background(), c, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	if err != nil {
		Te.Fatal(err)
	}
	p := filepath.Join(Te.TempDir(), "perovskites.json")
	if err := DumpJSON(p, []doc{{Formula: "SrTiO3"}}); err != nil {
		Te.Fatal(err)
	}
	key, err := U.UploadFile(context.Background(), p, "")
	if err != nil {
		Te.Fatal(err)
	}
	fmt.Println("uploaded", key, len(fake.objects))
	if key != "exports/perovskites.json" {
		Te.Errorf("unexpected key %s", key)
	}
	body, ok := fake.objects["/collab/exports/perovskites.json"]
	if !ok || !bytes.Contains(body, []byte("SrTiO3")) {
		Te.Errorf("object not uploaded: %v", fake.objects)
	}
	if fake.types["/collab/exports/perovskites.json"] != "application/json" {
		Te.Errorf("wrong content type %q", fake.types["/collab/exports/perovskites.json"])
	}
}

func TestS3ConfigFromEnv(Te *testing.T) {
	Te.Setenv("MATFLOW_S3_BUCKET", "")
	if _, err := S3ConfigFromEnv(); err == nil {
		Te.Error("expected an error without bucket")
	}
	Te.Setenv("MATFLOW_S3_BUCKET", "b")
	Te.Setenv("MATFLOW_S3_PATH_STYLE", "TRUE")
	c, err := S3ConfigFromEnv()
	if err != nil || !c.PathStyle || c.Bucket != "b" {
		Te.Errorf("unexpected config %+v %v", c, err)
	}
}
