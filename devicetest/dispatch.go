package devicetest

import (
	"encoding/json"
)

// inboundEnvelope is the shape of every decrypted/unframed SMART request.
type inboundEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type controlChildParams struct {
	DeviceID    string `json:"device_id"`
	RequestData struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"requestData"`
}

type batchParams struct {
	Requests []struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"requests"`
}

// dispatch answers one decrypted SMART envelope, routing control_child and
// multipleRequest through f.Responder the same way a real device would.
func (f *FakeServer) dispatch(plain []byte) []byte {
	var in inboundEnvelope
	if err := json.Unmarshal(plain, &in); err != nil {
		return marshalEnvelope(-1, nil)
	}

	switch in.Method {
	case "control_child":
		var p controlChildParams
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return marshalEnvelope(-1, nil)
		}
		result, code := f.respond(p.RequestData.Method, p.RequestData.Params, p.DeviceID)
		inner := marshalEnvelope(code, result)
		return marshalEnvelope(0, map[string]interface{}{"responseData": json.RawMessage(inner)})

	case "multipleRequest":
		var p batchParams
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return marshalEnvelope(-1, nil)
		}
		responses := make([]map[string]interface{}, 0, len(p.Requests))
		for _, r := range p.Requests {
			result, code := f.respond(r.Method, r.Params, "")
			responses = append(responses, map[string]interface{}{
				"method":     r.Method,
				"error_code": code,
				"result":     result,
			})
		}
		return marshalEnvelope(0, map[string]interface{}{"responses": responses})

	default:
		result, code := f.respond(in.Method, in.Params, "")
		return marshalEnvelope(code, result)
	}
}

func marshalEnvelope(errorCode int, result interface{}) []byte {
	if result == nil {
		result = map[string]interface{}{}
	}
	body, _ := json.Marshal(map[string]interface{}{"error_code": errorCode, "result": result})
	return body
}
