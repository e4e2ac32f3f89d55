/*
Copyright 2024 Registrly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	buf, err := ToJsonReq(map[string]string{"event": "submission.created"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"submission.created"}`, buf.String())
}

func TestPostJSON(t *testing.T) {
	httpmock.ActivateNonDefault(defaultClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/registrly",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "abc", req.Header.Get("X-Token"))
			return httpmock.NewStringResponse(200, `{"ok":true}`), nil
		})

	var out struct {
		OK bool `json:"ok"`
	}
	_, err := PostJSON(context.Background(), "https://hooks.example.com/registrly", map[string]string{"X-Token": "abc"}, map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestPostJSON_ErrorStatus(t *testing.T) {
	httpmock.ActivateNonDefault(defaultClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/registrly",
		httpmock.NewStringResponder(500, "boom"))

	_, err := PostJSON(context.Background(), "https://hooks.example.com/registrly", nil, map[string]string{}, nil)
	assert.Error(t, err)
}

func TestPostJSON_EmptyBody(t *testing.T) {
	httpmock.ActivateNonDefault(defaultClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/slack",
		httpmock.NewStringResponder(200, ""))

	var out map[string]interface{}
	_, err := PostJSON(context.Background(), "https://hooks.example.com/slack", nil, map[string]string{"text": "hi"}, &out)
	assert.NoError(t, err)
}
