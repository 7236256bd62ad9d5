package replayv1

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Codec is the content-subtype the Replay service speaks. Clients built with
// NewReplayClient select it on every call.
const Codec = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return Codec
}

// CallOption selects the JSON codec for calls made through a raw connection.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(Codec)
}
