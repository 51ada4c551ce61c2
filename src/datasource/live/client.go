package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FlightScheduleOptimizer/src/processor"
)

// ErrNoAPIKey 未配置 AVIATIONSTACK_API_KEY
var ErrNoAPIKey = errors.New("aviationstack access key is not set")

// Client aviationstack 航班状态接口
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchDepartures 查询某机场的离港航班, 没有数据时返回空切片
func (c *Client) FetchDepartures(ctx context.Context, iata string, limit int) ([]processor.LiveRecord, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	params := url.Values{
		"access_key": {c.apiKey},
		"dep_iata":   {iata},
		"limit":      {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/flights?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error 会带上完整地址, 不能把 access_key 写进日志
		return nil, fmt.Errorf("flights request for %s: %w", iata, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("aviationstack API error: status %d: %s", resp.StatusCode, body)
	}

	var flightsResp response
	if err := json.NewDecoder(resp.Body).Decode(&flightsResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	records := make([]processor.LiveRecord, 0, len(flightsResp.Data))
	for _, f := range flightsResp.Data {
		records = append(records, f.record())
	}
	return records, nil
}

func redact(err error, secret string) error {
	msg := err.Error()
	if secret == "" || !strings.Contains(msg, secret) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, secret, "***"))
}

// aviationstack API response types.

type response struct {
	Data []flight `json:"data"`
}

type flight struct {
	FlightStatus string   `json:"flight_status"`
	Departure    endpoint `json:"departure"`
	Arrival      endpoint `json:"arrival"`
	Airline      struct {
		Name string `json:"name"`
	} `json:"airline"`
	Flight struct {
		Number string `json:"number"`
		IATA   string `json:"iata"`
	} `json:"flight"`
}

type endpoint struct {
	IATA      string `json:"iata"`
	Scheduled string `json:"scheduled"`
	Actual    string `json:"actual"`
}

func (f flight) record() processor.LiveRecord {
	return processor.LiveRecord{
		FlightIATA:   f.Flight.IATA,
		FlightNumber: f.Flight.Number,
		Airline:      f.Airline.Name,
		From:         f.Departure.IATA,
		To:           f.Arrival.IATA,
		Status:       f.FlightStatus,
		Scheduled:    f.Departure.Scheduled,
		Actual:       f.Departure.Actual,
	}
}
