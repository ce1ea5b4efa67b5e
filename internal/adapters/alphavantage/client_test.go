package alphavantage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	// Cuota alta y backoff mínimo para que los tests no esperen.
	c := NewClient(srv.URL, "test-key", 6000)
	c.retryWait = time.Millisecond
	return c, srv
}

func TestQueryDailyAdjusted(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "full", r.URL.Query().Get("outputsize"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		fmt.Fprint(w, `{
			"Meta Data": {"2. Symbol": "AAPL"},
			"Time Series (Daily)": {
				"2024-03-01": {
					"1. open": "100.5", "2. high": "102.0", "3. low": "99.5",
					"4. close": "101.0", "5. adjusted close": "101.0",
					"6. volume": "1000000", "7. dividend amount": "0.0",
					"8. split coefficient": "1.0"
				},
				"2024-02-29": {
					"1. open": "98.0", "2. high": "100.0", "3. low": "97.0",
					"4. close": "99.5", "5. adjusted close": "99.5",
					"6. volume": "900000", "7. dividend amount": "0.24",
					"8. split coefficient": "1.0"
				},
				"2024-02-28": {
					"1. open": "97.0", "2. high": "98.0", "3. low": "96.0",
					"4. close": "97.5", "5. adjusted close": "97.5",
					"6. volume": "800000", "7. dividend amount": "0.0",
					"8. split coefficient": "1.0"
				}
			}
		}`)
	})
	defer srv.Close()

	bars, err := c.QueryDailyAdjusted(context.Background(), "AAPL", "2024-02-29")
	require.NoError(t, err)

	// Filtrada a since y descendente.
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-03-01", bars[0].Date)
	assert.Equal(t, "2024-02-29", bars[1].Date)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 100.5, bars[0].Open)
	assert.Equal(t, 101.0, bars[0].AdjustedClose)
	assert.Equal(t, 0.24, bars[1].DividendAmount)
}

func TestQuerySMA(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SMA", r.URL.Query().Get("function"))
		assert.Equal(t, "200", r.URL.Query().Get("time_period"))
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "close", r.URL.Query().Get("series_type"))

		fmt.Fprint(w, `{
			"Technical Analysis: SMA": {
				"2024-03-01": {"SMA": "150.1234"},
				"2024-02-29": {"SMA": "149.9876"}
			}
		}`)
	})
	defer srv.Close()

	points, err := c.QuerySMA(context.Background(), "AAPL", 200, "2018-01-01")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-03-01", points[0].Date)
	assert.Equal(t, 150.1234, points[0].Value)
}

func TestQueryMACD(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MACD", r.URL.Query().Get("function"))
		fmt.Fprint(w, `{
			"Technical Analysis: MACD": {
				"2024-03-01": {"MACD": "1.5", "MACD_Hist": "0.2", "MACD_Signal": "1.3"}
			}
		}`)
	})
	defer srv.Close()

	points, err := c.QueryMACD(context.Background(), "AAPL", "2018-01-01")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 1.5, points[0].Macd)
	assert.Equal(t, 0.2, points[0].Hist)
	assert.Equal(t, 1.3, points[0].Signal)
}

func TestQueryBBands(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BBANDS", r.URL.Query().Get("function"))
		assert.Equal(t, "20", r.URL.Query().Get("time_period"))
		fmt.Fprint(w, `{
			"Technical Analysis: BBANDS": {
				"2024-03-01": {"Real Lower Band": "95.0", "Real Upper Band": "105.0", "Real Middle Band": "100.0"}
			}
		}`)
	})
	defer srv.Close()

	points, err := c.QueryBBands(context.Background(), "AAPL", 20, "2018-01-01")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 95.0, points[0].Lower)
	assert.Equal(t, 105.0, points[0].Upper)
	assert.Equal(t, 100.0, points[0].Middle)
}

func TestQueryRetriesOnNote(t *testing.T) {
	var calls atomic.Int64
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`)
			return
		}
		fmt.Fprint(w, `{"Technical Analysis: RSI": {"2024-03-01": {"RSI": "55.5"}}}`)
	})
	defer srv.Close()

	points, err := c.QueryRSI(context.Background(), "AAPL", 14, "2018-01-01")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 55.5, points[0].Value)
	assert.Equal(t, int64(2), calls.Load())
}

func TestQueryErrorMessage(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Error Message": "Invalid API call."}`)
	})
	defer srv.Close()

	_, err := c.QueryDailyAdjusted(context.Background(), "NOPE", "2018-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API call")
}

func TestQueryMissingSeries(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Meta Data": {}}`)
	})
	defer srv.Close()

	_, err := c.QuerySMA(context.Background(), "AAPL", 200, "2018-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Technical Analysis: SMA")
}
