// Package all wires the built-in storage backends into the storage factory.
//
// It exists purely for side effects: a blank import runs each backend's init
// function, which registers its factory and DDL bootstrapper with the storage
// package. Importing this package makes "sqlite" and "postgres" available to
// storage.New at runtime.
package all

import (
	_ "tfengine/internal/storage/postgres"
	_ "tfengine/internal/storage/sqlite"
)
