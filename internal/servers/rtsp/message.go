package rtsp

import (
	"fmt"
	"strings"
)

const rtspProto = "RTSP/1.0"

// serverHeader identifies this implementation in every response.
const serverHeader = "XCam-RTSP/1.0"

// status codes.
const (
	statusOK               = 200
	statusBadRequest       = 400
	statusUnauthorized     = 401
	statusNotFound         = 404
	statusMethodNotAllowed = 405
	statusSessionNotFound  = 454
	statusInternalError    = 500
)

func statusReason(code int) string {
	switch code {
	case statusOK:
		return "OK"
	case statusBadRequest:
		return "Bad Request"
	case statusUnauthorized:
		return "Unauthorized"
	case statusNotFound:
		return "Not Found"
	case statusMethodNotAllowed:
		return "Method Not Allowed"
	case statusSessionNotFound:
		return "Session Not Found"
	case statusInternalError:
		return "Internal Server Error"
	}
	return "Unknown"
}

var errMalformedRequest = fmt.Errorf("malformed request line")

// request is one parsed RTSP request. Header names are matched
// case-insensitively; values keep their original form.
type request struct {
	method  string
	uri     string
	proto   string
	headers map[string]string
}

// header returns the value of a header, matched case-insensitively.
func (r *request) header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// parseRequest parses the bytes of one RTSP request, up to but not
// including the terminating double CRLF.
func parseRequest(data []byte) (*request, error) {
	text := string(data)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 {
		return nil, errMalformedRequest
	}

	parts := strings.SplitN(strings.TrimRight(lines[0], "\n"), " ", 3)
	if len(parts) != 3 || parts[0] == "" || !strings.HasPrefix(parts[2], "RTSP/") {
		return nil, errMalformedRequest
	}

	req := &request{
		method:  parts[0],
		uri:     parts[1],
		proto:   parts[2],
		headers: make(map[string]string),
	}

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		req.headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	return req, nil
}

type headerField struct {
	name  string
	value string
}

// response is one RTSP response under construction. Header order is
// preserved so responses are byte-stable.
type response struct {
	code    int
	headers []headerField
	body    []byte
}

func newResponse(code int) *response {
	return &response{code: code}
}

func (r *response) add(name, value string) *response {
	r.headers = append(r.headers, headerField{name: name, value: value})
	return r
}

func (r *response) setBody(contentType string, body []byte) *response {
	r.add("Content-Type", contentType)
	r.add("Content-Length", fmt.Sprintf("%d", len(body)))
	r.body = body
	return r
}

// marshal serializes the response, echoing the given CSeq.
func (r *response) marshal(cseq int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\r\n", rtspProto, r.code, statusReason(r.code))
	fmt.Fprintf(&b, "CSeq: %d\r\n", cseq)
	fmt.Fprintf(&b, "Server: %s\r\n", serverHeader)
	for _, h := range r.headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.name, h.value)
	}
	b.WriteString("\r\n")
	out := []byte(b.String())
	return append(out, r.body...)
}
