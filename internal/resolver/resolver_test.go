package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/helix-host/helix/internal/manifest"
	"github.com/helix-host/helix/internal/resolver"
)

func mustAdd(t *testing.T, r *resolver.Resolver, name, version string, deps ...manifest.Dependency) {
	t.Helper()
	require.NoError(t, r.Add(&manifest.Manifest{
		Name: name, Version: version, BinaryPath: "lib" + name + ".so",
		Dependencies: deps,
	}))
}

func dep(name, req string) manifest.Dependency {
	return manifest.Dependency{Name: name, Requirement: req}
}

type ResolverSuite struct {
	suite.Suite
	r *resolver.Resolver
}

func (s *ResolverSuite) SetupTest() {
	s.r = resolver.New()
}

func (s *ResolverSuite) TestLinearChain() {
	mustAdd(s.T(), s.r, "a", "1.0.0")
	mustAdd(s.T(), s.r, "b", "1.0.0", dep("a", ""))
	mustAdd(s.T(), s.r, "c", "1.0.0", dep("b", ""))

	res := s.r.Resolve([]string{"c"})
	s.Require().Empty(res.Missing)
	s.Require().Empty(res.Cyclic)
	s.Equal([]string{"a", "b", "c"}, res.Order)
}

func (s *ResolverSuite) TestCycle() {
	mustAdd(s.T(), s.r, "x", "1.0.0", dep("y", ""))
	mustAdd(s.T(), s.r, "y", "1.0.0", dep("x", ""))

	res := s.r.Resolve([]string{"x"})
	s.Require().Empty(res.Missing)
	s.ElementsMatch([]string{"x", "y"}, res.Cyclic)
}

func (s *ResolverSuite) TestCycleSetTightened() {
	// z -> a (not on any cycle), a -> b -> a (cycle). z must not appear
	// in the cyclic set: it is a predecessor, not a cycle member.
	mustAdd(s.T(), s.r, "a", "1.0.0", dep("b", ""))
	mustAdd(s.T(), s.r, "b", "1.0.0", dep("a", ""))
	mustAdd(s.T(), s.r, "z", "1.0.0", dep("a", ""))

	res := s.r.Resolve([]string{"z"})
	s.ElementsMatch([]string{"a", "b"}, res.Cyclic)
	s.NotContains(res.Cyclic, "z")
}

func (s *ResolverSuite) TestMissingMandatory() {
	mustAdd(s.T(), s.r, "a", "1.0.0", dep("b", ">=1.0.0"))

	res := s.r.Resolve([]string{"a"})
	s.Equal([]string{"b"}, res.Missing)
}

func (s *ResolverSuite) TestMissingOptionalIgnored() {
	mustAdd(s.T(), s.r, "a", "1.0.0", manifest.Dependency{Name: "b", Optional: true})

	res := s.r.Resolve([]string{"a"})
	s.Empty(res.Missing)
	s.Equal([]string{"a"}, res.Order)
}

func (s *ResolverSuite) TestMissingAndCyclicReportedTogether() {
	// x -> y -> x is a cycle; x also depends on a module that was never
	// registered. Resolve must surface both sets in the same Result
	// rather than stopping at whichever it finds first.
	mustAdd(s.T(), s.r, "x", "1.0.0", dep("y", ""), dep("ghost", ""))
	mustAdd(s.T(), s.r, "y", "1.0.0", dep("x", ""))

	res := s.r.Resolve([]string{"x"})
	s.Equal([]string{"ghost"}, res.Missing)
	s.ElementsMatch([]string{"x", "y"}, res.Cyclic)
	s.Empty(res.Order)
}

func (s *ResolverSuite) TestVersionUnsatisfied() {
	mustAdd(s.T(), s.r, "b", "1.5.0")
	mustAdd(s.T(), s.r, "a", "1.0.0", dep("b", ">=2.0.0"))

	res := s.r.Resolve([]string{"a"})
	s.Equal([]string{"b"}, res.Missing)
}

func (s *ResolverSuite) TestDeterministicTieBreak() {
	mustAdd(s.T(), s.r, "z", "1.0.0")
	mustAdd(s.T(), s.r, "a", "1.0.0")
	mustAdd(s.T(), s.r, "m", "1.0.0", dep("a", ""), dep("z", ""))

	res := s.r.Resolve([]string{"m"})
	s.Equal([]string{"a", "z", "m"}, res.Order)
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func TestAddDuplicateRejected(t *testing.T) {
	r := resolver.New()
	mustAdd(t, r, "a", "1.0.0")
	err := r.Add(&manifest.Manifest{Name: "a", Version: "1.0.0", BinaryPath: "x.so"})
	assert.Error(t, err)
}
