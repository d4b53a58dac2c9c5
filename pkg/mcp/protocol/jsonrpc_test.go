// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDStringOrNumber(t *testing.T) {
	var id RequestID
	require.NoError(t, json.Unmarshal([]byte(`42`), &id))
	assert.Equal(t, "42", id.String())

	var strID RequestID
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &strID))
	assert.Equal(t, "abc", strID.String())

	var bad RequestID
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &bad))
}

func TestRequestIDRoundTrip(t *testing.T) {
	id := NewNumericRequestID(7)
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))
}

func TestResponseWithError(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Error(), "method not found")
}

func TestCallToolResultText(t *testing.T) {
	res := CallToolResult{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "image"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", res.Text())
}
