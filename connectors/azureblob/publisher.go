// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package azureblob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"archforge/shared/logger"
)

// Config selects the storage account and authentication method. Exactly
// one of ConnectionString, AccountKey, or neither (DefaultAzureCredential)
// drives client construction, tried in that order.
type Config struct {
	AccountName      string
	Container        string
	ConnectionString string
	AccountKey       string
}

// Publisher mirrors completed run folders into a blob container. Upload
// failures are reported to the caller but never abort a run: the local
// folder is the source of truth and the blob copy is a convenience.
type Publisher struct {
	client    blobClient
	container string
	account   string
	log       *logger.Logger
}

// blobClient is the subset of azblob.Client the publisher uses; tests
// substitute it.
type blobClient interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// NewPublisher builds a publisher from config, choosing the auth method
// the same way the CLI documents it: connection string first, then shared
// key, then ambient Azure credentials.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("blob container is required")
	}

	var (
		client *azblob.Client
		err    error
	)

	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
	case cfg.AccountKey != "":
		if cfg.AccountName == "" {
			return nil, fmt.Errorf("account name is required with shared key auth")
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	default:
		if cfg.AccountName == "" {
			return nil, fmt.Errorf("account name is required")
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	}

	return &Publisher{
		client:    client,
		container: cfg.Container,
		account:   cfg.AccountName,
		log:       logger.New("azureblob"),
	}, nil
}

// PublishFolder walks a local run folder and uploads every regular file
// under a prefix matching the folder name. Returns the number of blobs
// uploaded.
func (p *Publisher) PublishFolder(ctx context.Context, folder string) (int, error) {
	if p.client == nil {
		return 0, fmt.Errorf("blob client not initialized")
	}

	prefix := filepath.Base(folder)
	start := time.Now()
	uploaded := 0

	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		blobName := prefix + "/" + filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}

		contentType := ContentTypeFor(path)
		_, err = p.client.UploadBuffer(ctx, p.container, blobName, data, &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", blobName, err)
		}

		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}

	p.log.InfoWithDuration("", "run folder published", float64(time.Since(start).Milliseconds()), map[string]interface{}{
		"container": p.container,
		"prefix":    prefix,
		"blobs":     uploaded,
	})
	return uploaded, nil
}

// ContentTypeFor maps artifact extensions to blob content types.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
