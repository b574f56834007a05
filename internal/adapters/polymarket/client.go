package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Gamma /events y /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// GET /markets/{id} individuales (reconciliación): mucho más suave,
	// el worker de fondo ya se auto-espacia entre llamadas.
	marketRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// FeedConfig ajusta el filtrado del listado y la detección de ganadores.
type FeedConfig struct {
	Limit           int     // mercados por fetch
	MinVolume       float64 // volumen mínimo para considerar un mercado
	WinnerThreshold float64 // precio final que marca al outcome ganador
}

// Client es el HTTP client de la API Gamma con rate limiting y retries.
type Client struct {
	http          *http.Client
	gammaBase     string
	eventsLimiter *rate.Limiter
	marketLimiter *rate.Limiter

	limit           int
	minVolume       float64
	winnerThreshold float64
}

// NewClient crea un Client contra el base URL dado.
// Si gammaBase está vacío, usa el URL de producción.
func NewClient(gammaBase string, cfg FeedConfig) *Client {
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 10
	}
	if cfg.WinnerThreshold <= 0 || cfg.WinnerThreshold >= 1 {
		cfg.WinnerThreshold = 0.95
	}
	return &Client{
		http:            &http.Client{Timeout: 10 * time.Second},
		gammaBase:       gammaBase,
		eventsLimiter:   rate.NewLimiter(gammaRatePerSec, 10),
		marketLimiter:   rate.NewLimiter(marketRatePerSec, 5),
		limit:           cfg.Limit,
		minVolume:       cfg.MinVolume,
		winnerThreshold: cfg.WinnerThreshold,
	}
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
