package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ConnectParams is the JSON payload base64-encoded into the WS
// endpoint path, `GET /ws/connect/{base64}/`.
type ConnectParams struct {
	RoomID    int32  `json:"room_id"`
	UserID    int32  `json:"user_id"`
	Token     uint32 `json:"token"`
	Stream    string `json:"stream"`
	SharedKey string `json:"shared_key"`
}

// DecodeConnectParams decodes and parses the path segment. Tries
// standard and URL-safe base64, since either could reach the server
// depending on how the client escaped the path.
func DecodeConnectParams(encoded string) (ConnectParams, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return ConnectParams{}, fmt.Errorf("decode connect params: %w", err)
		}
	}

	var params ConnectParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return ConnectParams{}, fmt.Errorf("parse connect params: %w", err)
	}
	return params, nil
}
