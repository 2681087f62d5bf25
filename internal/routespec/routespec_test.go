package routespec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutesFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesWellFormedRoutesFile(t *testing.T) {
	path := writeRoutesFile(t, `
routes:
  - pattern: /api/users
    methods: [GET, POST]
    upstream: http://localhost:9001
  - pattern: /api/orders/*
    pool:
      strategy: round_robin
      targets:
        - url: http://localhost:9002
          weight: 1
        - url: http://localhost:9003
          weight: 2
`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Routes, 2)

	assert.Equal(t, "/api/users", f.Routes[0].Pattern)
	assert.Equal(t, []string{"GET", "POST"}, f.Routes[0].Methods)
	assert.Equal(t, "http://localhost:9001", f.Routes[0].Upstream)

	assert.Equal(t, "round_robin", f.Routes[1].Pool.Strategy)
	require.Len(t, f.Routes[1].Pool.Targets, 2)
	assert.Equal(t, 2, f.Routes[1].Pool.Targets[1].Weight)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadFailsOnMalformedYAML(t *testing.T) {
	path := writeRoutesFile(t, "routes: [this is not valid: yaml: at all")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsEmptyPattern(t *testing.T) {
	f := &File{Routes: []RouteSpec{{Upstream: "http://localhost:9001"}}}
	assert.Error(t, f.Validate())
}

func TestValidateRequiresUpstreamOrPool(t *testing.T) {
	f := &File{Routes: []RouteSpec{{Pattern: "/x"}}}
	assert.Error(t, f.Validate())
}

func TestValidateRejectsBothUpstreamAndPool(t *testing.T) {
	f := &File{Routes: []RouteSpec{{
		Pattern:  "/x",
		Upstream: "http://localhost:9001",
		Pool:     &PoolSpec{Targets: []TargetSpec{{URL: "http://localhost:9002"}}},
	}}}
	assert.Error(t, f.Validate())
}

func TestValidateRejectsEmptyPoolTargets(t *testing.T) {
	f := &File{Routes: []RouteSpec{{Pattern: "/x", Pool: &PoolSpec{Targets: nil}}}}
	assert.Error(t, f.Validate())
}

func TestValidateAcceptsWellFormedRoutes(t *testing.T) {
	f := &File{Routes: []RouteSpec{
		{Pattern: "/a", Upstream: "http://localhost:9001"},
		{Pattern: "/b", Pool: &PoolSpec{Targets: []TargetSpec{{URL: "http://localhost:9002"}}}},
	}}
	assert.NoError(t, f.Validate())
}
