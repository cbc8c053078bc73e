// Package douyin describes the upstream web surface: how profile and
// listing URLs are built and what the listing and profile payloads look
// like. Field names of the platform live here and nowhere else.
package douyin
