package strand

import "github.com/strandq/strand/id"

// ID is the primary identifier type for all strand entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
