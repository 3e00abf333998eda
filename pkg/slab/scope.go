package slab

import "github.com/dnorman/unbase/pkg/network"

// With creates a slab on net, runs fn and closes the slab on every exit
// path. A panic in fn propagates after the slab is closed.
func With(net *network.Network, fn func(*Slab) error, opts ...Option) error {
	s, err := New(net, opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// WithContext opens a context on s, runs fn and closes the context on
// every exit path.
func (s *Slab) WithContext(fn func(*Context) error) error {
	c, err := s.CreateContext()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
