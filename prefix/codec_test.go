package prefix

import (
	"testing"

	"github.com/acksell/sharedtable/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReverse_RoundTrip(t *testing.T) {
	c := New(".")
	v := c.Apply(tenant.ID("ctx1"), "table1", "1")
	assert.Equal(t, "ctx1.table1.1", v.Qualified)

	got, err := c.Reverse(v.Qualified)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID("ctx1"), got.Tenant)
	assert.Equal(t, "table1", got.VirtualTable)
	assert.Equal(t, "1", got.Original)
}

func TestReverse_OriginalValueMayContainDelimiter(t *testing.T) {
	c := New(".")
	got, err := c.Reverse("ctx1.table1.a.b.c")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID("ctx1"), got.Tenant)
	assert.Equal(t, "table1", got.VirtualTable)
	assert.Equal(t, "a.b.c", got.Original)
}

func TestReverse_MalformedPrefix(t *testing.T) {
	c := New(".")
	_, err := c.Reverse("onlyonedelimiter")
	assert.ErrorIs(t, err, ErrMalformedPrefix)

	_, err = c.Reverse("one.delimiter")
	assert.ErrorIs(t, err, ErrMalformedPrefix)
}

func TestDefaultDelimiter(t *testing.T) {
	c := New("")
	assert.Equal(t, DefaultDelimiter, c.Delimiter())
}

func TestContainsDelimiter(t *testing.T) {
	c := New(".")
	assert.True(t, c.ContainsDelimiter("a.b"))
	assert.False(t, c.ContainsDelimiter("ab"))
}
