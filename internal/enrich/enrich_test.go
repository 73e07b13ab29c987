// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/errors"
)

func TestLookup_Self(t *testing.T) {
	info := NewResolver().Lookup(uint32(os.Getpid()))
	require.NotNil(t, info)

	assert.Equal(t, uint32(os.Getpid()), info.PID)
	assert.NotEmpty(t, info.Name)
	assert.Equal(t, uint32(os.Getppid()), info.PPID)
}

func TestLookup_Missing(t *testing.T) {
	r := NewResolver()
	assert.Nil(t, r.Lookup(0))
	assert.Nil(t, r.Lookup(0x3ffffff0))
}

func TestOpenGeoIP_Errors(t *testing.T) {
	_, err := OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	bad := filepath.Join(t.TempDir(), "bad.mmdb")
	require.NoError(t, os.WriteFile(bad, []byte("not a maxmind database"), 0o600))
	_, err = OpenGeoIP(bad)
	assert.True(t, errors.IsKind(err, errors.KindMalformed))
}

func TestGeoIP_Nil(t *testing.T) {
	var g *GeoIP
	assert.Nil(t, g.LookupAddr(0x01020304))
	assert.NoError(t, g.Close())
}
