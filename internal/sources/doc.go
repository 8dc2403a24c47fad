// Package sources fetches the authoritative engine class list from remote
// sources.
//
// A SourceHandler returns either a complete class list together with its
// freshness marker, or an error. Three source types are supported:
//
//   - api: queries the client-version endpoint, then downloads the API dump
//     for the reported upload
//   - git: clones a repository that tracks the API dump
//   - file: reads a dump from the local filesystem
//
// Payloads are parsed according to the configured format (api-dump or
// class-list). Parsing never yields an empty list: a payload without classes
// is an error.
package sources
