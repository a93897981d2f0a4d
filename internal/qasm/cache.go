package qasm

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache keeps recently parsed programs keyed by their source text. Watch
// mode and the editor re-run the same source many times.
type Cache struct {
	programs *lru.Cache[string, *Program]
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, *Program](size)
	if err != nil {
		return nil, err
	}
	return &Cache{programs: c}, nil
}

// Parse returns the cached program for src, parsing it on a miss. Parse
// errors are not cached.
func (c *Cache) Parse(src string) (*Program, error) {
	if p, ok := c.programs.Get(src); ok {
		return p, nil
	}
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c.programs.Add(src, p)
	return p, nil
}

func (c *Cache) Len() int { return c.programs.Len() }
