package email

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// MarshalMsg appends the msgpack encoding of the message tree to b.
//
// A message is a map {"headers", "body"}; headers are arrays of
// [name, value] pairs; a part is a map whose "kind" is "basic", "multipart"
// or "message" followed by the common MIME fields and the kind's own fields.
func (m *Message) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 2)
	b = msgp.AppendString(b, "headers")
	b = appendHeaders(b, m.Headers)
	b = msgp.AppendString(b, "body")
	if m.Body == nil {
		return msgp.AppendNil(b), nil
	}
	return appendPart(b, m.Body)
}

func appendHeaders(b []byte, h Headers) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(h)))
	for _, hdr := range h {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendString(b, hdr.Name)
		b = msgp.AppendString(b, hdr.Value)
	}
	return b
}

func appendInfo(b []byte, info *PartInfo) []byte {
	b = msgp.AppendString(b, "headers")
	b = appendHeaders(b, info.Headers)
	b = msgp.AppendString(b, "type")
	b = msgp.AppendString(b, info.ContentType)
	b = msgp.AppendString(b, "subtype")
	b = msgp.AppendString(b, info.ContentSubType)
	b = msgp.AppendString(b, "params")
	b = msgp.AppendString(b, info.ContentTypeParams)
	b = msgp.AppendString(b, "disposition")
	b = msgp.AppendString(b, info.Disposition.String())
	b = msgp.AppendString(b, "disposition_params")
	b = msgp.AppendString(b, info.DispositionParams)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendString(b, info.ContentID)
	b = msgp.AppendString(b, "description")
	b = msgp.AppendString(b, info.ContentDescription)
	b = msgp.AppendString(b, "md5")
	b = msgp.AppendString(b, info.ContentMD5)
	b = msgp.AppendString(b, "encoding")
	b = msgp.AppendString(b, info.Encoding.String())
	return b
}

// infoFields is the number of map entries written by appendInfo.
const infoFields = 10

func appendPart(b []byte, p Part) ([]byte, error) {
	var err error
	switch v := p.(type) {
	case *BasicPart:
		b = msgp.AppendMapHeader(b, 1+infoFields+1)
		b = msgp.AppendString(b, "kind")
		b = msgp.AppendString(b, "basic")
		b = appendInfo(b, &v.PartInfo)
		b = msgp.AppendString(b, "data")
		b = msgp.AppendBytes(b, v.Bytes())
	case *MultiPart:
		b = msgp.AppendMapHeader(b, 1+infoFields+3)
		b = msgp.AppendString(b, "kind")
		b = msgp.AppendString(b, "multipart")
		b = appendInfo(b, &v.PartInfo)
		b = msgp.AppendString(b, "boundary")
		b = msgp.AppendString(b, v.Boundary)
		b = msgp.AppendString(b, "preamble")
		b = msgp.AppendBytes(b, v.Preamble)
		b = msgp.AppendString(b, "parts")
		b = msgp.AppendArrayHeader(b, uint32(len(v.Parts)))
		for _, child := range v.Parts {
			if b, err = appendPart(b, child); err != nil {
				return b, err
			}
		}
	case *MessagePart:
		b = msgp.AppendMapHeader(b, 1+infoFields+2)
		b = msgp.AppendString(b, "kind")
		b = msgp.AppendString(b, "message")
		b = appendInfo(b, &v.PartInfo)
		if v.External {
			b = msgp.AppendString(b, "external_headers")
			b = appendHeaders(b, v.ExternalHeaders)
		} else {
			b = msgp.AppendString(b, "message")
			if v.Message == nil {
				b = msgp.AppendNil(b)
			} else if b, err = v.Message.MarshalMsg(b); err != nil {
				return b, err
			}
		}
	default:
		return b, fmt.Errorf("email: unsupported part type %T", p)
	}
	return b, nil
}
