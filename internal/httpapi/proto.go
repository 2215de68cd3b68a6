package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// Gate tablets may post scans as a compact protobuf message instead of
// JSON. The wire layout is
//
//	ScanRequest  { string qr_payload = 1; }
//	ScanResponse { string result = 1; string reason = 2; string code = 3;
//	               string pass_id = 4; string user_id = 5;
//	               string site_id = 6; string purpose_id = 7; }
const contentTypeProtobuf = "application/x-protobuf"

const (
	fieldScanPayload protowire.Number = 1

	fieldResult    protowire.Number = 1
	fieldReason    protowire.Number = 2
	fieldCode      protowire.Number = 3
	fieldPassID    protowire.Number = 4
	fieldUserID    protowire.Number = 5
	fieldSiteID    protowire.Number = 6
	fieldPurposeID protowire.Number = 7
)

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == contentTypeProtobuf ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// readScanProto reads a protobuf ScanRequest from the body. Unknown fields
// are skipped.
func readScanProto(r *http.Request) (types.ScanRequest, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return types.ScanRequest{}, errBodyTooLarge
		}
		return types.ScanRequest{}, err
	}

	var req types.ScanRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return types.ScanRequest{}, protowire.ParseError(n)
		}
		b = b[n:]

		if num == fieldScanPayload && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return types.ScanRequest{}, protowire.ParseError(n)
			}
			req.QRPayload = v
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return types.ScanRequest{}, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return req, nil
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func marshalScanResponse(resp types.ScanResponse) []byte {
	var b []byte
	b = appendStringField(b, fieldResult, resp.Result)
	b = appendStringField(b, fieldReason, resp.Reason)
	b = appendStringField(b, fieldCode, resp.Code)
	if d := resp.PassDetails; d != nil {
		b = appendStringField(b, fieldPassID, d.PassID)
		b = appendStringField(b, fieldUserID, d.UserID)
		b = appendStringField(b, fieldSiteID, d.SiteID)
		b = appendStringField(b, fieldPurposeID, d.PurposeID)
	}
	return b
}

// writeScanProto writes resp as a protobuf ScanResponse with the given HTTP
// status.
func writeScanProto(w http.ResponseWriter, status int, resp types.ScanResponse) {
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(marshalScanResponse(resp))
}
