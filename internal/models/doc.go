// Package models defines the domain types shared by the transport, auth and playback layers.
//
// The package contains three categories of types:
//
// 1. Music Service DTOs: values decoded from the Web API and rendered by the UI
//   - [Track] : Catalog item with duration and artist credits
//   - [Device] : Output endpoint enumerated via the device list
//   - [PlayerState] : Remote playback state as reported by the Music Service
//
// 2. Client state: in-memory mirrors owned by a single component
//   - [Session] : Local mirror of remote playback, owned by the playback engine
//   - [TokenRecord] : The persisted credential triple, owned by the token manager
//
// 3. Persistence: the opaque string-keyed [Store] and its well-known keys.
package models
