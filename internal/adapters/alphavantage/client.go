// Package alphavantage implementa el puerto MarketData contra la API
// HTTP de Alpha Vantage.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/sgruendel/stonks-local/internal/domain"
)

const (
	defaultBase = "https://www.alphavantage.co"

	// Alpha Vantage responde 200 con una "Note" cuando se supera la cuota;
	// se reintenta con backoff en vez de tratarlo como error.
	maxRetries    = 5
	baseRetryWait = 2 * time.Second
	maxRetryWait  = 60 * time.Second
)

// Client es el HTTP client de Alpha Vantage con rate limiting y retries.
// La cuota del plan gratuito es de pocas llamadas por minuto, así que el
// limiter va muy por debajo de cualquier otra consideración de rendimiento.
type Client struct {
	http      *http.Client
	base      string
	apiKey    string
	limiter   *rate.Limiter
	retryWait time.Duration
}

// NewClient crea un Client. Si base está vacío usa el URL de producción;
// callsPerMinute limita el ritmo de peticiones (<= 0 significa 5).
func NewClient(base, apiKey string, callsPerMinute int) *Client {
	if base == "" {
		base = defaultBase
	}
	if callsPerMinute <= 0 {
		callsPerMinute = 5
	}
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		base:      base,
		apiKey:    apiKey,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), 1),
		retryWait: baseRetryWait,
	}
}

// QueryDailyAdjusted devuelve las barras diarias ajustadas del símbolo,
// descendentes y filtradas a date >= since.
func (c *Client) QueryDailyAdjusted(ctx context.Context, symbol, since string) ([]domain.Bar, error) {
	params := url.Values{
		"function":   {"TIME_SERIES_DAILY_ADJUSTED"},
		"symbol":     {symbol},
		"outputsize": {"full"},
	}
	raw, err := c.querySeries(ctx, params, "Time Series (Daily)")
	if err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(raw))
	for date, fields := range raw {
		if date < since {
			continue
		}
		bar := domain.Bar{Symbol: symbol, Date: date}
		for key, dst := range map[string]*float64{
			"1. open":              &bar.Open,
			"2. high":              &bar.High,
			"3. low":               &bar.Low,
			"4. close":             &bar.Close,
			"5. adjusted close":    &bar.AdjustedClose,
			"6. volume":            &bar.Volume,
			"7. dividend amount":   &bar.DividendAmount,
			"8. split coefficient": &bar.SplitCoefficient,
		} {
			if *dst, err = parseField(fields, key, date); err != nil {
				return nil, err
			}
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date > bars[j].Date })
	return bars, nil
}

// QuerySMA devuelve la media móvil simple del período dado.
func (c *Client) QuerySMA(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	return c.querySimpleIndicator(ctx, "SMA", symbol, period, since)
}

// QueryEMA devuelve la media móvil exponencial del período dado.
func (c *Client) QueryEMA(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	return c.querySimpleIndicator(ctx, "EMA", symbol, period, since)
}

// QueryRSI devuelve el RSI del período dado.
func (c *Client) QueryRSI(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	return c.querySimpleIndicator(ctx, "RSI", symbol, period, since)
}

// QueryATR devuelve el average true range del período dado.
func (c *Client) QueryATR(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	return c.querySimpleIndicator(ctx, "ATR", symbol, period, since)
}

// QueryNATR devuelve el ATR normalizado del período dado.
func (c *Client) QueryNATR(ctx context.Context, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	return c.querySimpleIndicator(ctx, "NATR", symbol, period, since)
}

// QueryMACD devuelve la serie MACD con histograma y línea de señal, con los
// períodos estándar 12/26/9.
func (c *Client) QueryMACD(ctx context.Context, symbol, since string) ([]domain.MACDPoint, error) {
	params := url.Values{
		"function":    {"MACD"},
		"symbol":      {symbol},
		"interval":    {"daily"},
		"series_type": {"close"},
	}
	raw, err := c.querySeries(ctx, params, "Technical Analysis: MACD")
	if err != nil {
		return nil, err
	}

	points := make([]domain.MACDPoint, 0, len(raw))
	for date, fields := range raw {
		if date < since {
			continue
		}
		p := domain.MACDPoint{Date: date}
		for key, dst := range map[string]*float64{
			"MACD":        &p.Macd,
			"MACD_Hist":   &p.Hist,
			"MACD_Signal": &p.Signal,
		} {
			if *dst, err = parseField(fields, key, date); err != nil {
				return nil, err
			}
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date > points[j].Date })
	return points, nil
}

// QueryBBands devuelve las Bollinger Bands del período dado, con 2
// desviaciones estándar a cada lado.
func (c *Client) QueryBBands(ctx context.Context, symbol string, period int, since string) ([]domain.BandsPoint, error) {
	params := url.Values{
		"function":    {"BBANDS"},
		"symbol":      {symbol},
		"interval":    {"daily"},
		"time_period": {strconv.Itoa(period)},
		"series_type": {"close"},
	}
	raw, err := c.querySeries(ctx, params, "Technical Analysis: BBANDS")
	if err != nil {
		return nil, err
	}

	points := make([]domain.BandsPoint, 0, len(raw))
	for date, fields := range raw {
		if date < since {
			continue
		}
		p := domain.BandsPoint{Date: date}
		for key, dst := range map[string]*float64{
			"Real Lower Band":  &p.Lower,
			"Real Upper Band":  &p.Upper,
			"Real Middle Band": &p.Middle,
		} {
			if *dst, err = parseField(fields, key, date); err != nil {
				return nil, err
			}
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date > points[j].Date })
	return points, nil
}

func (c *Client) querySimpleIndicator(ctx context.Context, function, symbol string, period int, since string) ([]domain.SeriesPoint, error) {
	params := url.Values{
		"function":    {function},
		"symbol":      {symbol},
		"interval":    {"daily"},
		"time_period": {strconv.Itoa(period)},
	}
	// ATR y NATR trabajan sobre la barra completa, no admiten series_type.
	if function != "ATR" && function != "NATR" {
		params.Set("series_type", "close")
	}
	raw, err := c.querySeries(ctx, params, "Technical Analysis: "+function)
	if err != nil {
		return nil, err
	}

	points := make([]domain.SeriesPoint, 0, len(raw))
	for date, fields := range raw {
		if date < since {
			continue
		}
		value, err := parseField(fields, function, date)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.SeriesPoint{Date: date, Value: value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date > points[j].Date })
	return points, nil
}

// querySeries hace la petición y extrae el objeto de serie bajo seriesKey.
// Una respuesta con "Note" es la cuota agotada: backoff y reintento. Una
// respuesta con "Error Message" es un símbolo o función inválidos: error.
func (c *Client) querySeries(ctx context.Context, params url.Values, seriesKey string) (map[string]map[string]string, error) {
	params.Set("apikey", c.apiKey)
	u := c.base + "/query?" + params.Encode()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		payload, err := c.get(ctx, u)
		if err != nil {
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if msg, ok := stringField(payload, "Error Message"); ok {
			return nil, fmt.Errorf("alphavantage: %s", msg)
		}
		if msg, ok := stringField(payload, "Information"); ok {
			return nil, fmt.Errorf("alphavantage: %s", msg)
		}
		if note, ok := stringField(payload, "Note"); ok {
			slog.Warn("alphavantage throttled", "note", note, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		raw, ok := payload[seriesKey]
		if !ok {
			return nil, fmt.Errorf("alphavantage: response has no %q", seriesKey)
		}
		var series map[string]map[string]string
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("decode %q: %w", seriesKey, err)
		}
		return series, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) get(ctx context.Context, u string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// sleep espera con backoff exponencial acotado y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	wait += time.Duration(rand.Int63n(int64(c.retryWait)))
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func stringField(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseField(fields map[string]string, key, date string) (float64, error) {
	s, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("alphavantage: %s missing field %q", date, key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("alphavantage: %s field %q: %w", date, key, err)
	}
	return v, nil
}
