// Package llm wraps the Gemini API behind a small client interface used for
// plain-language summaries.
package llm

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for short summaries of a title or abstract
	TierLite ModelTier = "lite"
	// TierStandard is for summaries of full document text
	TierStandard ModelTier = "standard"
)

// Config maps tiers to Gemini model names.
type Config struct {
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.0-flash-lite",
			TierStandard: "gemini-2.0-flash",
		},
		Temperature: 0.2,
	}
}

// GetModel returns the model name for a tier, falling back to the standard
// model when the tier has none.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierStandard]
}

// WithModel returns a copy of the Config with model set for tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := &Config{
		Models:      make(map[ModelTier]string, len(c.Models)+1),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return out
}
