package wire

import "encoding/json"

// Startup is the handshake payload exchanged by client and server
// (spec §4.5).
type Startup struct {
	ClientSession   string   `json:"clientSession"`
	ServerSession   string   `json:"serverSession,omitempty"`
	ControlEndpoint string   `json:"controlEndpoint,omitempty"`
	DataEndpoint    string   `json:"dataEndpoint,omitempty"`
	ProtocolVersion uint8    `json:"protocolVersion"`
	Capabilities    []string `json:"capabilities,omitempty"`
	AgreedConfig    []string `json:"agreedConfig,omitempty"`
}

// ErrorPayload carries a failure back to the client, terminating the
// iterator that requested it after delivering any prior Blobs.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// StopPayload asks the server to cancel the worker serving RequestID.
type StopPayload struct {
	RequestID uint32 `json:"requestId"`
}

// ArchivePayload carries one field to write.
type ArchivePayload struct {
	CombinedKey map[string]string `json:"combinedKey"`
	Payload     []byte            `json:"payload"`
}

// ListPayload carries a list request.
type ListPayload struct {
	Request map[string][]string `json:"request"`
	Dedup   bool                 `json:"dedup"`
}

// BlobPayload carries one streamed result element.
type BlobPayload struct {
	CombinedKey map[string]string `json:"combinedKey"`
	URI         string            `json:"uri"`
	Offset      int64             `json:"offset"`
	Length      int64             `json:"length"`
}

// CompletePayload terminates a streamed response successfully.
type CompletePayload struct {
	Count int `json:"count"`
}

// Marshal encodes v as the payload of a Frame.
func Marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Every payload type above is trivially marshalable; a failure
		// here indicates a programming error, not a runtime condition.
		panic("wire: marshal: " + err.Error())
	}
	return b
}

// Unmarshal decodes a Frame's payload into v.
func Unmarshal(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}
