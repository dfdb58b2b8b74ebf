package hostutil_test

import (
	"testing"

	"github.com/blockwall/netfilter/internal/hostutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdnaResolver_ToASCII(t *testing.T) {
	t.Parallel()

	ascii, err := hostutil.Default.ToASCII("Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "example.com", ascii)

	puny, err := hostutil.Default.ToASCII("atđhe.net")
	require.NoError(t, err)
	assert.Equal(t, "xn--athe-1ua.net", puny)
}

func TestIdnaResolver_Domain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", hostutil.Default.Domain("subdomain.example.com"))
	assert.Equal(t, "example.co.uk", hostutil.Default.Domain("www.example.co.uk"))
}
