// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	ProjectId     string
	BucketName    string
}

func NewClient(ctx context.Context, projectId, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		ProjectId:     projectId,
		BucketName:    bucketName,
	}, nil
}

func (c *Client) Close() error {
	return c.storageClient.Close()
}

func (c *Client) UploadFile(ctx context.Context, localPath, gcsPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	// Get a writer for the GCS object
	obj := c.storageClient.Bucket(c.BucketName).Object(gcsPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeFor(localPath)
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, gcsPath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", gcsPath, err)
	}
	fmt.Printf("Successfully uploaded %s to gs://%s/%s\n", localPath, c.BucketName, gcsPath)
	return nil
}

func (c *Client) UploadDir(ctx context.Context, localDir, gcsPrefix string) error {
	return filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			gcsPath := path.Join(gcsPrefix, info.Name())
			return c.UploadFile(ctx, p, gcsPath)
		}
		return nil
	})
}

// DownloadPrefix fetches every object under gcsPrefix into destDir. The
// object name relative to the prefix becomes the local filename, so a run
// batch uploaded with UploadDir round-trips into a flat directory that
// LoadDir can consume directly.
func (c *Client) DownloadPrefix(ctx context.Context, gcsPrefix, destDir string) (int, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create the destination directory %s: %w", destDir, err)
	}

	bucket := c.storageClient.Bucket(c.BucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: gcsPrefix})

	count := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to list objects under gs://%s/%s: %w", c.BucketName, gcsPrefix, err)
		}
		// Prefix listings include directory placeholder objects; skip them.
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		if err := c.downloadObject(ctx, bucket, attrs.Name, gcsPrefix, destDir); err != nil {
			return count, err
		}
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no objects found under gs://%s/%s", c.BucketName, gcsPrefix)
	}
	fmt.Printf("Successfully downloaded %d objects from gs://%s/%s to %s\n", count, c.BucketName, gcsPrefix, destDir)
	return count, nil
}

func (c *Client) downloadObject(ctx context.Context, bucket *storage.BucketHandle, objectName, gcsPrefix, destDir string) error {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open GCS object %s: %w", objectName, err)
	}
	defer reader.Close()

	// Flatten the prefix off the object name; nested separators become
	// filename-safe underscores.
	rel := strings.TrimPrefix(objectName, gcsPrefix)
	rel = strings.Trim(rel, "/")
	rel = strings.ReplaceAll(rel, "/", "_")
	if rel == "" {
		rel = path.Base(objectName)
	}
	localPath := filepath.Join(destDir, rel)

	localFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create the local file %s: %w", localPath, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy GCS object %s to %s: %w", objectName, localPath, err)
	}
	return nil
}

func contentTypeFor(localPath string) string {
	switch filepath.Ext(localPath) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
