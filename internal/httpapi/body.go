package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// A scan body is a few hundred bytes; anything near the cap is not a QR.
const maxBodyBytes = 8 << 10

const contentTypeProtobuf = "application/x-protobuf"

var errBodyTooLarge = errors.New("request body too large")

// protobufTypes are the Content-Type values scanner kiosks send for binary
// bodies.
var protobufTypes = map[string]bool{
	contentTypeProtobuf:        true,
	"application/protobuf":     true,
	"application/octet-stream": true,
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wantsProtobuf reports whether the request body is protobuf. Media type
// parameters are ignored.
func wantsProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && protobufTypes[mt]
}

// readBody returns the request body, failing with errBodyTooLarge past
// maxBodyBytes instead of silently truncating.
func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return b, nil
}

// readJSON decodes the body into v, rejecting unknown fields. An empty body
// leaves v untouched.
func readJSON(r *http.Request, v any) error {
	b, err := readBody(r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readProto(r *http.Request, msg proto.Message) error {
	b, err := readBody(r)
	if err != nil {
		return err
	}
	return proto.Unmarshal(b, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	b, err := proto.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "could not encode response")
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
