package omp

import "github.com/marcbria/omp/id"

// ID is the primary identifier type for all engine entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
