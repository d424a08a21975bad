// Package image identifies container images by name and content hash.
//
// A Digest pairs a human-readable repository name with an algorithm-prefixed
// content digest ("sha256:..."). Runtimes are always handed the combined
// "name@digest" reference so a locally cached image with the same name but
// different content is never used.
package image
