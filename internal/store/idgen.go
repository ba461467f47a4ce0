package store

import (
	sf "github.com/tinode/snowflake"
)

// IDGen allocates globally ordered 64-bit identifiers using the
// teacher's own Snowflake-style generator (github.com/tinode/snowflake,
// the same package server/cluster.go's clusterInit seeds a worker id
// for). The master uses it for _SysMsg ids; generators seeded with
// distinct worker ids never hand out the same id.
type IDGen struct {
	gen sf.IdGenerator
}

// NewIDGen seeds a generator for worker (0-1023 in the teacher's
// scheme; the master seeds worker 0).
func NewIDGen(worker uint) (*IDGen, error) {
	g, err := sf.NewIdGenerator(worker)
	if err != nil {
		return nil, err
	}
	return &IDGen{gen: g}, nil
}

// Next returns the next id as a uint64. The underlying generator can
// fail only on clock drift, which this repo treats as fatal to the
// caller's allocation rather than silently reusing an id.
func (g *IDGen) Next() (uint64, error) {
	id, err := g.gen.Next()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
