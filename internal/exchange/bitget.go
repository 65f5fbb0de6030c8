package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"gridbot/pkg/types"
)

const bitgetBaseURL = "https://api.bitget.com"

// bitgetClient is a minimal signed REST client used only for account equity
// snapshots. Grid trading itself runs on the primary venue.
type bitgetClient struct {
	http  *resty.Client
	creds types.Credentials
}

func newBitgetClient(creds types.Credentials) *bitgetClient {
	return &bitgetClient{
		http: resty.New().
			SetBaseURL(bitgetBaseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
		creds: creds,
	}
}

type bitgetEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign builds the ACCESS-SIGN header: base64(HMAC-SHA256(ts+method+path+body)).
func (c *bitgetClient) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.creds.Secret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *bitgetClient) get(ctx context.Context, path string, signed bool) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.SetHeaders(map[string]string{
			"ACCESS-KEY":        c.creds.APIKey,
			"ACCESS-SIGN":       c.sign(ts, "GET", path, ""),
			"ACCESS-TIMESTAMP":  ts,
			"ACCESS-PASSPHRASE": c.creds.Passphrase,
		})
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("bitget GET %s: %w", path, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("bitget GET %s: status %d", path, resp.StatusCode())
	}

	var env bitgetEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("bitget GET %s: decode: %w", path, err)
	}
	if env.Code != "00000" {
		return nil, fmt.Errorf("bitget GET %s: code %s: %s", path, env.Code, env.Msg)
	}
	return env.Data, nil
}

// balances returns free+frozen per coin, skipping dust-free zero rows.
func (c *bitgetClient) balances(ctx context.Context) (map[string]types.Balance, error) {
	data, err := c.get(ctx, "/api/v2/spot/account/assets", true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Coin      string `json:"coin"`
		Available string `json:"available"`
		Frozen    string `json:"frozen"`
		Locked    string `json:"locked"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("bitget assets decode: %w", err)
	}

	out := make(map[string]types.Balance, len(rows))
	for _, r := range rows {
		free, _ := strconv.ParseFloat(r.Available, 64)
		frozen, _ := strconv.ParseFloat(r.Frozen, 64)
		locked, _ := strconv.ParseFloat(r.Locked, 64)
		used := frozen + locked
		if free == 0 && used == 0 {
			continue
		}
		out[r.Coin] = types.Balance{Free: free, Used: used, Total: free + used}
	}
	return out, nil
}

// tickers returns last prices keyed by venue symbol ("BTCUSDT").
func (c *bitgetClient) tickers(ctx context.Context) (map[string]float64, error) {
	data, err := c.get(ctx, "/api/v2/spot/market/tickers", false)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol string `json:"symbol"`
		LastPr string `json:"lastPr"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("bitget tickers decode: %w", err)
	}

	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		if p, err := strconv.ParseFloat(r.LastPr, 64); err == nil {
			out[r.Symbol] = p
		}
	}
	return out, nil
}
