// Package cboe descarga la historia del índice VIX desde el CSV público
// de CBOE e implementa el puerto VolatilityProvider.
package cboe

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sgruendel/stonks-local/internal/domain"
)

const defaultHistoryURL = "https://cdn.cboe.com/api/global/us_indices/daily_prices/VIX_History.csv"

// Client descarga la serie histórica del VIX. El CSV es un único fichero con
// toda la historia, sin paginación ni API key.
type Client struct {
	http *http.Client
	url  string
}

// NewClient crea un Client. Si historyURL está vacío usa el CSV de CBOE.
func NewClient(historyURL string) *Client {
	if historyURL == "" {
		historyURL = defaultHistoryURL
	}
	return &Client{
		http: &http.Client{Timeout: 60 * time.Second},
		url:  historyURL,
	}
}

// FetchHistory devuelve todos los puntos diarios del índice, ascendentes por
// fecha, sin las medias móviles (se calculan después en el pipeline).
func (c *Client) FetchHistory(ctx context.Context) ([]domain.VolatilityPoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching volatility history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return parseHistory(resp.Body)
}

// parseHistory lee el CSV DATE,OPEN,HIGH,LOW,CLOSE. Las fechas vienen como
// M/D/YYYY y se normalizan a YYYY-MM-DD; el orden del fichero ya es ascendente.
func parseHistory(r io.Reader) ([]domain.VolatilityPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	if header[0] != "DATE" {
		return nil, fmt.Errorf("unexpected csv header %q", header[0])
	}

	var points []domain.VolatilityPoint
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv record: %w", err)
		}

		date, err := normalizeDate(record[0])
		if err != nil {
			return nil, err
		}
		p := domain.VolatilityPoint{Date: date}
		for i, dst := range []*float64{&p.Open, &p.High, &p.Low, &p.Close} {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %s field %d: %w", date, i+1, err)
			}
			*dst = v
		}
		points = append(points, p)
	}
	return points, nil
}

func normalizeDate(s string) (string, error) {
	t, err := time.Parse("1/2/2006", s)
	if err != nil {
		// Los ficheros más recientes ya vienen en ISO.
		if t, err = time.Parse("2006-01-02", s); err != nil {
			return "", fmt.Errorf("parsing date %q: %w", s, err)
		}
	}
	return t.Format("2006-01-02"), nil
}
