package engine

import (
	"context"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
)

// Querier runs reads scoped to a partition filter.
//
// The returned table carries named columns in the order requested; row
// order is whatever the backing store returned.
type Querier interface {
	Query(ctx context.Context, q queryir.Select, sel model.PartitionSelect) (*model.Table, error)
}

// Writer applies mutations.
//
// Insert appends all rows of a table and returns the number inserted.
// Exec runs one statement scoped to a partition filter and returns the
// number of rows affected.
type Writer interface {
	Insert(ctx context.Context, table string, rows *model.Table) (int64, error)
	Exec(ctx context.Context, m queryir.Mutation, sel model.PartitionSelect) (int64, error)
}

// Connection is the full capability an Engine needs. It is owned by the
// caller and may be shared by engines working on disjoint partitions.
type Connection interface {
	Querier
	Writer
}
