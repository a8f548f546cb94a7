package grpcx

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts any JSON-encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventToStruct carries a protocol envelope over the Subscribe stream.
func EventToStruct(ev protocol.Event) (*structpb.Struct, error) {
	data, err := protocol.Encode(ev)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func EventFromStruct(s *structpb.Struct) (protocol.Event, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func num(in *structpb.Struct, key string) int {
	return int(in.GetFields()[key].GetNumberValue())
}

func strList(in *structpb.Struct, key string) []string {
	var out []string
	for _, v := range in.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
