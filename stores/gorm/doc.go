//go:build !wasm
// +build !wasm

// Package gorm keeps users in a relational database through GORM. Open
// understands PostgreSQL and SQLite (pure Go, no cgo); any other dialector
// can be passed to NewUserStore directly.
//
// # Database Schema
//
// AutoMigrate creates a single "users" table with a unique index on email
// and a unique composite index on (provider, provider_id). provider_id is
// NULL for local accounts so they never collide.
//
// # Usage
//
//	db, err := gormstore.Open("postgres", dsn)
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	users := gormstore.NewUserStore(db)
package gorm
