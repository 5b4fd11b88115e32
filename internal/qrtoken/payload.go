package qrtoken

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gravitational/trace"
)

const payloadHost = "checkin"

// Codec encodes and decodes the string carried by a scannable code:
// <scheme>://checkin?program=<int>&t=<unix_ms>. Any other shape is rejected.
type Codec struct {
	Scheme string
}

func (c Codec) Encode(programID int64, issuedAtMs int64) string {
	return fmt.Sprintf("%s://%s?program=%d&t=%d", c.Scheme, payloadHost, programID, issuedAtMs)
}

func (c Codec) Decode(payload string) (programID int64, issuedAtMs int64, err error) {
	parsed, err := url.Parse(payload)
	if err != nil {
		return 0, 0, trace.BadParameter("malformed payload")
	}
	if parsed.Scheme != c.Scheme || parsed.Host != payloadHost || parsed.Path != "" {
		return 0, 0, trace.BadParameter("malformed payload")
	}
	query := parsed.Query()
	for key := range query {
		if key != "program" && key != "t" {
			return 0, 0, trace.BadParameter("malformed payload")
		}
	}
	programID, err = strconv.ParseInt(query.Get("program"), 10, 64)
	if err != nil || programID <= 0 {
		return 0, 0, trace.BadParameter("malformed payload")
	}
	issuedAtMs, err = strconv.ParseInt(query.Get("t"), 10, 64)
	if err != nil || issuedAtMs <= 0 {
		return 0, 0, trace.BadParameter("malformed payload")
	}
	return programID, issuedAtMs, nil
}
