// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package azureblob publishes completed run folders to Azure Blob Storage.
//
// Publishing is optional and best-effort: the local run folder written by
// the report package is authoritative, and a failed upload degrades to a
// warning rather than failing the run. Authentication supports connection
// strings, shared account keys, and DefaultAzureCredential (managed
// identity, Azure CLI login, environment variables), tried in that order.
package azureblob
