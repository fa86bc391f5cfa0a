/*
 * s3.go, part of matflow.
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
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

//S3Config holds the parameters of an S3 (or MinIO) bucket. Credentials fall back
//to the default AWS chain when not given.
type S3Config struct {
	Bucket          string
	Region          string //us-east-1 if empty
	Endpoint        string //for S3-compatible services
	Prefix          string //prepended to every key
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

//S3ConfigFromEnv reads the configuration from the environment:
//MATFLOW_S3_BUCKET (required), MATFLOW_S3_REGION, MATFLOW_S3_ENDPOINT,
//MATFLOW_S3_PREFIX and MATFLOW_S3_PATH_STYLE.
func S3ConfigFromEnv() (S3Config, error) {
	c := S3Config{
		Bucket:    os.Getenv("MATFLOW_S3_BUCKET"),
		Region:    os.Getenv("MATFLOW_S3_REGION"),
		Endpoint:  os.Getenv("MATFLOW_S3_ENDPOINT"),
		Prefix:    os.Getenv("MATFLOW_S3_PREFIX"),
		PathStyle: strings.EqualFold(os.Getenv("MATFLOW_S3_PATH_STYLE"), "true"),
	}
	if c.Bucket == "" {
		return c, fmt.Errorf("archive: MATFLOW_S3_BUCKET not set")
	}
	return c, nil
}

//Uploader puts files in a bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

//NewUploader builds the S3 client. The optional fns are applied to the client
//options after the configuration, e.g. to set a custom HTTP client.
func NewUploader(ctx context.Context, c S3Config, fns ...func(*s3.Options)) (*Uploader, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("archive: no bucket given")
	}
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = c.PathStyle
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		for _, f := range fns {
			f(o)
		}
	})
	return &Uploader{client: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

//Key returns the object key for name, with the configured prefix.
func (U *Uploader) Key(name string) string {
	if U.prefix == "" {
		return name
	}
	return path.Join(U.prefix, name)
}

//contentType guesses the MIME type of a dump from its name.
func contentType(name string) string {
	switch CompressionFor(name) {
	case Zstd:
		return "application/zstd"
	case Gzip:
		return "application/gzip"
	}
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

//UploadFile uploads the local file name under key (the base name of the file if
//key is empty) and returns the full key used.
func (U *Uploader) UploadFile(ctx context.Context, name, key string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	defer f.Close()
	if key == "" {
		key = filepath.Base(name)
	}
	key = U.Key(key)
	_, err = U.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(U.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("archive: uploading %s to s3://%s/%s: %w", name, U.bucket, key, err)
	}
	return key, nil
}
