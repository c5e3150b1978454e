// Package storage lists, reads, writes and deletes files on named sources
// backed by a local folder, S3 or MinIO.
package storage
