package storage

import (
	"context"

	"github.com/stretchr/testify/suite"
)

// StoreContractSuite runs the same behaviour checks against every backend.
type StoreContractSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func (s *StoreContractSuite) TestAbsentKey() {
	value, found, err := s.store.Get(s.ctx, "missing")
	s.Require().NoError(err)
	s.False(found)
	s.Empty(value)
}

func (s *StoreContractSuite) TestSetThenGet() {
	s.Require().NoError(s.store.Set(s.ctx, "subcategories", `{"data":[],"timestamp":1}`))

	value, found, err := s.store.Get(s.ctx, "subcategories")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(`{"data":[],"timestamp":1}`, value)
}

func (s *StoreContractSuite) TestSetOverwrites() {
	s.Require().NoError(s.store.Set(s.ctx, "subcategories", "first"))
	s.Require().NoError(s.store.Set(s.ctx, "subcategories", "second"))

	value, found, err := s.store.Get(s.ctx, "subcategories")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("second", value)
}

func (s *StoreContractSuite) TestKeysAreIndependent() {
	s.Require().NoError(s.store.Set(s.ctx, "a", "1"))

	_, found, err := s.store.Get(s.ctx, "b")
	s.Require().NoError(err)
	s.False(found)
}
