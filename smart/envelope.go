// Package smart implements the SMART request envelope, per-device request
// queue, and multipleRequest/control_child wrapping layered above the
// KLAP and AES session engines.
package smart

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gokasa/kasa-core/common"
)

// Request is one method/params pair, either the sole call in a
// sendSmartCommand or one entry of a sendSmartRequests batch.
type Request struct {
	Method string
	Params interface{}
}

// envelopeOut is the wire shape every outbound payload takes: method and
// params from the call, request_time_milis/terminal_uuid always present.
type envelopeOut struct {
	Method           string      `json:"method"`
	Params           interface{} `json:"params,omitempty"`
	RequestTimeMilis int64       `json:"request_time_milis"`
	TerminalUUID     string      `json:"terminal_uuid"`
}

// envelopeIn is the wire shape of the top-level response to any outbound
// payload: error_code is always present.
type envelopeIn struct {
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result"`
}

func normalizeChildID(childID string) string { return strings.TrimSpace(childID) }

// WrapSingle builds the envelope for a single-method call, per spec §4.5.
func WrapSingle(method string, params interface{}, terminalUUID string, now time.Time) ([]byte, error) {
	return json.Marshal(envelopeOut{
		Method:           method,
		Params:           params,
		RequestTimeMilis: now.UnixMilli(),
		TerminalUUID:     terminalUUID,
	})
}

// controlChildParams is the params object for a control_child call.
type controlChildParams struct {
	DeviceID    string      `json:"device_id"`
	RequestData requestData `json:"requestData"`
}

type requestData struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// WrapChild builds the control_child envelope wrapping a single inner
// method call for one child device, per spec §4.5.
func WrapChild(method string, params interface{}, childID, terminalUUID string, now time.Time) ([]byte, error) {
	childID = normalizeChildID(childID)
	if childID == "" {
		return nil, fmt.Errorf("%w: empty childId", common.ErrInvalidArgument)
	}
	inner := controlChildParams{
		DeviceID: childID,
		RequestData: requestData{
			Method: method,
			Params: params,
		},
	}
	return WrapSingle("control_child", inner, terminalUUID, now)
}

// batchParams is the params object for a multipleRequest call.
type batchParams struct {
	Requests []batchRequest `json:"requests"`
}

type batchRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// WrapBatch builds the multipleRequest envelope for a set of independent
// method calls, per spec §4.5.
func WrapBatch(requests []Request, terminalUUID string, now time.Time) ([]byte, error) {
	return WrapSingle("multipleRequest", BatchRequestParams(requests), terminalUUID, now)
}

// BatchRequestParams builds the params object a multipleRequest call takes,
// for callers that need to nest a batch inside another envelope (e.g.
// control_child wrapping a multipleRequest).
func BatchRequestParams(requests []Request) interface{} {
	inner := batchParams{Requests: make([]batchRequest, len(requests))}
	for i, r := range requests {
		inner.Requests[i] = batchRequest{Method: r.Method, Params: r.Params}
	}
	return inner
}

// UnwrapSingle parses a top-level, non-child response for method: on
// success it returns the raw `result` payload.
func UnwrapSingle(respJSON []byte, method string) (json.RawMessage, error) {
	var env envelopeIn
	if err := json.Unmarshal(respJSON, &env); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", common.ErrProtocolError, err)
	}
	if env.ErrorCode != 0 {
		return nil, &common.SmartError{Code: env.ErrorCode, Method: method, ResponseJSON: string(respJSON)}
	}
	return env.Result, nil
}

// responseDataEnvelope is the shape of `result` for a control_child call.
type responseDataEnvelope struct {
	ResponseData envelopeIn `json:"responseData"`
}

// UnwrapChild parses a control_child response: it verifies the top-level
// control_child call succeeded, then unwraps and re-verifies the inner
// responseData for the child's own method, per spec §4.5.
func UnwrapChild(respJSON []byte, method string) (json.RawMessage, error) {
	result, err := UnwrapSingle(respJSON, "control_child")
	if err != nil {
		return nil, err
	}
	var wrapped responseDataEnvelope
	if err := json.Unmarshal(result, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: control_child result missing responseData: %v", common.ErrProtocolError, err)
	}
	if wrapped.ResponseData.ErrorCode != 0 {
		return nil, &common.SmartError{Code: wrapped.ResponseData.ErrorCode, Method: method, ResponseJSON: string(respJSON)}
	}
	return wrapped.ResponseData.Result, nil
}

// batchResponseEntry is one entry of multipleRequest's result.responses.
type batchResponseEntry struct {
	Method    string          `json:"method"`
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result"`
}

type batchResult struct {
	Responses []batchResponseEntry `json:"responses"`
}

// UnwrapBatch parses a multipleRequest response into a method -> result
// map, per spec §4.5. Any per-entry non-zero error_code fails the whole
// call with that entry's SmartError.
func UnwrapBatch(respJSON []byte) (map[string]json.RawMessage, error) {
	result, err := UnwrapSingle(respJSON, "multipleRequest")
	if err != nil {
		return nil, err
	}
	return parseBatchResult(result, respJSON)
}

// UnwrapBatchChild parses a control_child response whose inner method was
// multipleRequest: it verifies both wrapping layers, then parses the
// child's batch result the same way UnwrapBatch does for a top-level call.
func UnwrapBatchChild(respJSON []byte) (map[string]json.RawMessage, error) {
	result, err := UnwrapChild(respJSON, "multipleRequest")
	if err != nil {
		return nil, err
	}
	return parseBatchResult(result, respJSON)
}

func parseBatchResult(result json.RawMessage, respJSON []byte) (map[string]json.RawMessage, error) {
	var br batchResult
	if err := json.Unmarshal(result, &br); err != nil {
		return nil, fmt.Errorf("%w: multipleRequest result missing responses: %v", common.ErrProtocolError, err)
	}
	out := make(map[string]json.RawMessage, len(br.Responses))
	for _, entry := range br.Responses {
		if entry.Method == "" {
			return nil, fmt.Errorf("%w: multipleRequest response entry missing method", common.ErrProtocolError)
		}
		if entry.ErrorCode != 0 {
			return nil, &common.SmartError{Code: entry.ErrorCode, Method: entry.Method, ResponseJSON: string(respJSON)}
		}
		out[entry.Method] = entry.Result
	}
	return out, nil
}
