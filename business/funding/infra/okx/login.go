package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"
)

// Credentials holds the API key material needed to authenticate OKX's
// private WebSocket channels. Funding-rate/mark-price data is public and
// needs no login; Credentials is used only when a deployment also wants
// private channels (e.g. account-level order books) over the same socket.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// loginArg is one entry of the "args" array in an OKX login frame.
type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type loginFrame struct {
	Op   string     `json:"op"`
	Args []loginArg `json:"args"`
}

// buildLoginFrame signs timestamp+"GET"+"/users/self/verify" with HMAC-SHA256
// over the API secret and base64-encodes the result (OKX's v5 WS login spec).
func buildLoginFrame(creds Credentials, now time.Time) ([]byte, error) {
	ts := strconv.FormatInt(now.Unix(), 10)
	prehash := ts + "GET" + "/users/self/verify"

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(prehash))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	frame := loginFrame{
		Op: "login",
		Args: []loginArg{{
			APIKey:     creds.APIKey,
			Passphrase: creds.Passphrase,
			Timestamp:  ts,
			Sign:       sign,
		}},
	}
	return json.Marshal(frame)
}
