package authguard

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"time"
)

// Codec defines how a session payload and its creation time are serialized
// into the bytes kept by a Store.
type Codec interface {
	// Encode encodes the creation time and the session payload.
	Encode(createdAt time.Time, payload []byte) ([]byte, error)

	// Decode decodes data into the creation time and the session payload.
	Decode(data []byte) (createdAt time.Time, payload []byte, err error)
}

var (
	_ Codec = GobCodec{}
	_ Codec = JSONCodec{}
)

type record struct {
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// GobCodec is the default Codec, using encoding/gob.
type GobCodec struct{}

func (GobCodec) Encode(createdAt time.Time, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(&record{CreatedAt: createdAt, Payload: payload})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (time.Time, []byte, error) {
	var r record
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r.CreatedAt, r.Payload, err
}

// JSONCodec stores records as JSON, which keeps them readable from
// redis-cli or a SQL shell.
type JSONCodec struct{}

func (JSONCodec) Encode(createdAt time.Time, payload []byte) ([]byte, error) {
	return json.Marshal(&record{CreatedAt: createdAt, Payload: payload})
}

func (JSONCodec) Decode(data []byte) (time.Time, []byte, error) {
	var r record
	err := json.Unmarshal(data, &r)
	return r.CreatedAt, r.Payload, err
}
