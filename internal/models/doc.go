// Package models defines the data model for the vinyl play-log tracker.
//
// The JSON tags on [Play], [CartridgeStats], [CredentialBlob] and
// [RemoteDocument] define the schema of the remote gist data file and must
// stay stable across versions: two devices running different builds share
// the same document.
package models
