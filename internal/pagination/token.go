package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidToken = errors.New("invalid page token")

type token struct {
	ChannelID string `json:"c"`
	Page
}

// EncodeToken produces an opaque token for the given channel page.
func EncodeToken(channelID string, p Page) (string, error) {
	data, err := json.Marshal(token{ChannelID: channelID, Page: p})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token issued for channelID. An empty token yields ok=false.
func DecodeToken(channelID, s string) (p Page, ok bool, err error) {
	if s == "" {
		return Page{}, false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Page{}, false, fmt.Errorf("%w: decode base64: %v", ErrInvalidToken, err)
	}
	var t token
	if err := json.Unmarshal(data, &t); err != nil {
		return Page{}, false, fmt.Errorf("%w: decode json: %v", ErrInvalidToken, err)
	}
	if t.ChannelID != channelID {
		return Page{}, false, fmt.Errorf("%w: issued for another channel", ErrInvalidToken)
	}
	if t.Number < 1 || t.Size < 1 {
		return Page{}, false, fmt.Errorf("%w: bad page", ErrInvalidToken)
	}
	return t.Page, true, nil
}
