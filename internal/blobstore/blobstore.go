// Package blobstore implements the Blob Store Client: a content-addressed
// store for action code, keyed by SHA-256 hash under
// actions/{namespace}/{action_name}/{sha256}.
package blobstore

import (
	"context"
	"time"
)

// Client is the Blob Store Client contract.
type Client interface {
	// Put stores code and returns its content hash (the key suffix).
	Put(ctx context.Context, namespace, actionName string, code []byte, binary bool) (codeHash string, err error)
	Get(ctx context.Context, namespace, actionName, codeHash string) ([]byte, error)
	Delete(ctx context.Context, namespace, actionName, codeHash string) error
	// PresignedGet returns a time-limited URL an invoker can use to fetch
	// the blob directly, bypassing the controller API.
	PresignedGet(ctx context.Context, namespace, actionName, codeHash string, expires time.Duration) (string, error)
}

// ObjectPath builds the content-addressed key layout shared by every
// blobstore implementation.
func ObjectPath(namespace, actionName, codeHash string) string {
	return "actions/" + namespace + "/" + actionName + "/" + codeHash
}
