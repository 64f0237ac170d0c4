package classifier

import (
	"context"
	"fmt"

	"carbonwatch-backend/internal/config"
)

// New builds the backend selected in cfg, rate limited when configured.
func New(ctx context.Context, cfg config.ClassifierConfig) (Classifier, error) {
	var c Classifier
	switch cfg.Backend {
	case "http", "":
		c = NewHTTPClassifier(cfg.URL, cfg.Timeout)
	case "gemini":
		g, err := NewGeminiClassifier(ctx, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
	return WithRateLimit(c, cfg.RatePerSecond), nil
}
