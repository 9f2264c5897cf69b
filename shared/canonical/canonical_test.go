package canonical

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/hashgraph-online/flora-price-oracle/shared/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsObjectKeys(t *testing.T) {
	got, err := Canonicalize(map[string]interface{}{
		"zeta":  1,
		"alpha": "x",
		"mid": map[string]interface{}{
			"b": true,
			"a": nil,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":{"a":null,"b":true},"zeta":1}`, string(got))
}

func TestCanonicalize_ArraysKeepOrder(t *testing.T) {
	got, err := Canonicalize([]interface{}{3, 1, 2, []interface{}{"b", "a"}})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2,["b","a"]]`, string(got))
}

func TestCanonicalize_NonFiniteNumbersBecomeZero(t *testing.T) {
	got, err := Canonicalize(map[string]interface{}{
		"nan":    math.NaN(),
		"posInf": math.Inf(1),
		"negInf": math.Inf(-1),
		"ok":     0.25,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"nan":0,"negInf":0,"ok":0.25,"posInf":0}`, string(got))
}

func TestCanonicalize_NumberNormalization(t *testing.T) {
	a, err := Canonicalize(map[string]interface{}{"price": json.Number("0.070")})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]interface{}{"price": 0.07})
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestCanonicalize_SemanticallyEqualTreesMatch(t *testing.T) {
	first, err := Canonicalize(map[string]interface{}{
		"records": []interface{}{
			map[string]interface{}{"adapterId": "coingecko", "price": 0.1},
		},
		"registryTopicId": "0.0.12345",
	})
	require.NoError(t, err)

	// Decoding the encoded form and canonicalizing again is a fixpoint.
	var tree interface{}
	require.NoError(t, json.Unmarshal(first, &tree))
	second, err := Canonicalize(tree)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCanonicalize_StructsRouteThroughJSONTags(t *testing.T) {
	type sample struct {
		Beta  string `json:"beta"`
		Alpha int    `json:"alpha"`
		Skip  string `json:"skip,omitempty"`
	}
	got, err := Canonicalize(sample{Beta: "b", Alpha: 7})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":7,"beta":"b"}`, string(got))
}

func TestCanonicalize_NoHTMLEscaping(t *testing.T) {
	got, err := Canonicalize(map[string]interface{}{"url": "https://x.test/?a=1&b=<2>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://x.test/?a=1&b=<2>"}`, string(got))
}

func TestDigest(t *testing.T) {
	d, err := Digest(map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, hashutil.HashHex([]byte(`{"a":1}`)), d)
	assert.Len(t, d, 96)
}
