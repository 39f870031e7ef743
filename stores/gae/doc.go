//go:build !wasm
// +build !wasm

// Package gae stores users in Google Cloud Datastore. Each store works in
// one Datastore namespace, so several deployments can share a project.
//
// # Datastore Kinds
//
//   - User: user accounts, keyed by user id
//   - UserEmail: uniqueness marker keyed by normalized email
//   - UserProvider: uniqueness marker keyed by "provider:providerId"
//
// Markers are written in the same transaction as the user, which gives
// strongly consistent lookups by email and provider account.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "") // default namespace
package gae
