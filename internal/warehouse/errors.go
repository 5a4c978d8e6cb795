package warehouse

import "errors"

// ErrUnresolvedDate reports a trip whose pickup date has no time_dim row.
var ErrUnresolvedDate = errors.New("unresolved date key")
