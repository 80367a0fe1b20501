package smart

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokasa/kasa-core/common"
)

var fixedNow = time.Unix(1700000000, 0)

func TestWrapSingleIncludesEnvelopeFields(t *testing.T) {
	body, err := WrapSingle("get_device_info", nil, "term-uuid", fixedNow)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "get_device_info", got["method"])
	assert.Equal(t, "term-uuid", got["terminal_uuid"])
	assert.Equal(t, float64(fixedNow.UnixMilli()), got["request_time_milis"])
	assert.NotContains(t, got, "params")
}

func TestWrapChildRejectsEmptyChildID(t *testing.T) {
	_, err := WrapChild("get_device_info", nil, "  ", "term-uuid", fixedNow)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestWrapChildNestsRequestData(t *testing.T) {
	body, err := WrapChild("get_device_info", map[string]int{"x": 1}, "child-1", "term-uuid", fixedNow)
	require.NoError(t, err)

	var got struct {
		Method string `json:"method"`
		Params struct {
			DeviceID    string `json:"device_id"`
			RequestData struct {
				Method string         `json:"method"`
				Params map[string]int `json:"params"`
			} `json:"requestData"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "control_child", got.Method)
	assert.Equal(t, "child-1", got.Params.DeviceID)
	assert.Equal(t, "get_device_info", got.Params.RequestData.Method)
	assert.Equal(t, 1, got.Params.RequestData.Params["x"])
}

func TestWrapBatchListsAllRequests(t *testing.T) {
	body, err := WrapBatch([]Request{{Method: "a"}, {Method: "b", Params: map[string]int{"n": 2}}}, "term-uuid", fixedNow)
	require.NoError(t, err)

	var got struct {
		Method string `json:"method"`
		Params struct {
			Requests []struct {
				Method string `json:"method"`
			} `json:"requests"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "multipleRequest", got.Method)
	require.Len(t, got.Params.Requests, 2)
	assert.Equal(t, "a", got.Params.Requests[0].Method)
	assert.Equal(t, "b", got.Params.Requests[1].Method)
}

func TestUnwrapSingleSuccess(t *testing.T) {
	result, err := UnwrapSingle([]byte(`{"error_code":0,"result":{"ok":true}}`), "get_device_info")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestUnwrapSingleError(t *testing.T) {
	_, err := UnwrapSingle([]byte(`{"error_code":-1,"result":{}}`), "get_device_info")
	require.Error(t, err)
	var smartErr *common.SmartError
	require.ErrorAs(t, err, &smartErr)
	assert.Equal(t, -1, smartErr.Code)
	assert.Equal(t, "get_device_info", smartErr.Method)
}

func TestUnwrapChildSuccess(t *testing.T) {
	body := `{"error_code":0,"result":{"responseData":{"error_code":0,"result":{"ok":true}}}}`
	result, err := UnwrapChild([]byte(body), "get_device_info")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestUnwrapChildInnerErrorSurfaces(t *testing.T) {
	body := `{"error_code":0,"result":{"responseData":{"error_code":-2,"result":{}}}}`
	_, err := UnwrapChild([]byte(body), "get_device_info")
	require.Error(t, err)
	var smartErr *common.SmartError
	require.ErrorAs(t, err, &smartErr)
	assert.Equal(t, -2, smartErr.Code)
}

func TestUnwrapChildOuterErrorSurfaces(t *testing.T) {
	body := `{"error_code":-9,"result":{}}`
	_, err := UnwrapChild([]byte(body), "get_device_info")
	require.Error(t, err)
	var smartErr *common.SmartError
	require.ErrorAs(t, err, &smartErr)
	assert.Equal(t, -9, smartErr.Code)
	assert.Equal(t, "control_child", smartErr.Method)
}

func TestUnwrapBatchSuccess(t *testing.T) {
	body := `{"error_code":0,"result":{"responses":[
		{"method":"a","error_code":0,"result":{"x":1}},
		{"method":"b","error_code":0,"result":{"y":2}}
	]}}`
	out, err := UnwrapBatch([]byte(body))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.JSONEq(t, `{"x":1}`, string(out["a"]))
	assert.JSONEq(t, `{"y":2}`, string(out["b"]))
}

func TestUnwrapBatchChildSuccess(t *testing.T) {
	body := `{"error_code":0,"result":{"responseData":{"error_code":0,"result":{"responses":[
		{"method":"a","error_code":0,"result":{"x":1}}
	]}}}}`
	out, err := UnwrapBatchChild([]byte(body))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(out["a"]))
}

func TestUnwrapBatchPerEntryErrorFails(t *testing.T) {
	body := `{"error_code":0,"result":{"responses":[
		{"method":"a","error_code":0,"result":{}},
		{"method":"b","error_code":-5,"result":{}}
	]}}`
	_, err := UnwrapBatch([]byte(body))
	require.Error(t, err)
	var smartErr *common.SmartError
	require.ErrorAs(t, err, &smartErr)
	assert.Equal(t, "b", smartErr.Method)
	assert.Equal(t, -5, smartErr.Code)
}
