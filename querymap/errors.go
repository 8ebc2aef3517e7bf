package querymap

import "errors"

// ErrUnsupportedPredicate is returned for any key-condition clause that is
// not a plain equality, or whose field does not resolve against the
// current scope's key schema.
var ErrUnsupportedPredicate = errors.New("sharedtable/querymap: unsupported predicate")

// ErrUnknownIndex is returned when a query/scan names an IndexName that has
// no corresponding virtual secondary index on the table mapping.
var ErrUnknownIndex = errors.New("sharedtable/querymap: unknown index")
