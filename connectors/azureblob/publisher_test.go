// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package azureblob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"archforge/shared/logger"
)

type fakeBlobClient struct {
	uploads map[string]string // blob name -> content type
	failOn  string
}

func (f *fakeBlobClient) UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	if f.failOn != "" && blobName == f.failOn {
		return azblob.UploadBufferResponse{}, errors.New("upload rejected")
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	contentType := ""
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		contentType = *o.HTTPHeaders.BlobContentType
	}
	f.uploads[blobName] = contentType
	return azblob.UploadBufferResponse{}, nil
}

func testFolder(t *testing.T) string {
	t.Helper()
	folder := filepath.Join(t.TempDir(), "case-study-2025-06-01T14-30-05-ab12cd34-demo")
	if err := os.MkdirAll(filepath.Join(folder, "agent-debug"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"original-case-study.md":            "# Demo",
		"metadata-2025-06-01T14-30-05.json": "{}",
		"agent-debug/researcher.json":       "{}",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(folder, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return folder
}

func TestPublishFolderMirrorsFiles(t *testing.T) {
	fake := &fakeBlobClient{}
	p := &Publisher{client: fake, container: "runs", log: logger.New("azureblob")}

	folder := testFolder(t)
	n, err := p.PublishFolder(context.Background(), folder)
	if err != nil {
		t.Fatalf("PublishFolder failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 uploads, got %d", n)
	}

	prefix := filepath.Base(folder)
	var names []string
	for name := range fake.uploads {
		names = append(names, name)
	}
	sort.Strings(names)

	want := []string{
		prefix + "/agent-debug/researcher.json",
		prefix + "/metadata-2025-06-01T14-30-05.json",
		prefix + "/original-case-study.md",
	}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("upload %d: got %q, want %q", i, names[i], w)
		}
	}
	if got := fake.uploads[prefix+"/original-case-study.md"]; got != "text/markdown" {
		t.Errorf("markdown content type: got %q", got)
	}
	if got := fake.uploads[prefix+"/metadata-2025-06-01T14-30-05.json"]; got != "application/json" {
		t.Errorf("json content type: got %q", got)
	}
}

func TestPublishFolderUploadError(t *testing.T) {
	folder := testFolder(t)
	prefix := filepath.Base(folder)
	fake := &fakeBlobClient{failOn: prefix + "/original-case-study.md"}
	p := &Publisher{client: fake, container: "runs", log: logger.New("azureblob")}

	if _, err := p.PublishFolder(context.Background(), folder); err == nil {
		t.Fatal("expected error from failed upload")
	}
}

func TestNewPublisherRequiresContainer(t *testing.T) {
	if _, err := NewPublisher(Config{AccountName: "acct"}); err == nil {
		t.Fatal("expected error for missing container")
	}
}

func TestNewPublisherSharedKeyRequiresAccount(t *testing.T) {
	_, err := NewPublisher(Config{Container: "runs", AccountKey: "a2V5"})
	if err == nil {
		t.Fatal("expected error for missing account name")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"solution.md":   "text/markdown",
		"metadata.JSON": "application/json",
		"notes.txt":     "text/plain",
		"diagram.png":   "application/octet-stream",
	}
	for path, want := range cases {
		if got := ContentTypeFor(path); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}
