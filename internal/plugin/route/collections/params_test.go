package collections

import (
	"testing"

	registrystore "github.com/convsync/sync-service/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	sel, err := parseSelector(`{"conv_id":"c1","deleted":{"$ne":true}}`)
	require.NoError(t, err)
	require.Equal(t, "c1", sel["conv_id"])

	sel, err = parseSelector("")
	require.NoError(t, err)
	require.Empty(t, sel)

	_, err = parseSelector(`{broken`)
	require.Error(t, err)

	_, err = parseSelector(`["not","an","object"]`)
	require.Error(t, err)
}

func TestParseFields(t *testing.T) {
	proj, err := parseFields(`{"content":1,"rev":true,"conv_id":0}`)
	require.NoError(t, err)
	require.Equal(t, 1, proj["content"])
	require.Equal(t, 1, proj["rev"])
	require.Equal(t, 0, proj["conv_id"])

	proj, err = parseFields("")
	require.NoError(t, err)
	require.Nil(t, proj)

	_, err = parseFields(`[1,2]`)
	require.Error(t, err)
}

func TestParseSort(t *testing.T) {
	sort, err := parseSort(`["server_seq"]`)
	require.NoError(t, err)
	require.Equal(t, []registrystore.SortField{{Field: "server_seq"}}, sort)

	sort, err = parseSort(`[["updated_at_server","desc"],["_id"]]`)
	require.NoError(t, err)
	require.Equal(t, []registrystore.SortField{
		{Field: "updated_at_server", Desc: true},
		{Field: "_id"},
	}, sort)

	sort, err = parseSort(`[["rev",-1]]`)
	require.NoError(t, err)
	require.True(t, sort[0].Desc)

	_, err = parseSort(`[42]`)
	require.Error(t, err)

	_, err = parseSort(`not json`)
	require.Error(t, err)
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	require.Equal(t, int64(defaultLimit), n)

	n, err = parseLimit("10")
	require.NoError(t, err)
	require.Equal(t, int64(10), n)

	n, err = parseLimit("0")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = parseLimit("99999")
	require.NoError(t, err)
	require.Equal(t, int64(maxLimit), n)

	_, err = parseLimit("abc")
	require.Error(t, err)
}
