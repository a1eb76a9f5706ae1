package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Asset is one tradable entry in the YAML basket. Zero-valued risk and
// sizing fields fall back to the engine-wide defaults at load time.
type Asset struct {
	Name          string  `yaml:"name"`
	Symbol        string  `yaml:"symbol"`
	Enabled       bool    `yaml:"enabled"`
	AllocationPct float64 `yaml:"allocation_pct"`
	Leverage      float64 `yaml:"leverage"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
}

type assetFile struct {
	Assets []Asset `yaml:"assets"`
}

// LoadAssets reads the asset basket from a YAML file, applies defaults
// from cfg to unset per-asset fields, and drops disabled entries.
func LoadAssets(path string, cfg *Config) ([]Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	var file assetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("load assets: parse %s: %w", path, err)
	}

	assets := make([]Asset, 0, len(file.Assets))
	seen := make(map[string]bool)
	for _, a := range file.Assets {
		if !a.Enabled {
			continue
		}
		if a.Name == "" || a.Symbol == "" {
			return nil, fmt.Errorf("load assets: entry with empty name or symbol in %s", path)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("load assets: duplicate asset %q", a.Name)
		}
		seen[a.Name] = true

		if a.AllocationPct == 0 {
			a.AllocationPct = cfg.AllocationPct
		}
		if a.Leverage == 0 {
			a.Leverage = cfg.Leverage
		}
		if a.StopLossPct == 0 {
			a.StopLossPct = cfg.StopLossPct
		}
		if a.TakeProfitPct == 0 {
			a.TakeProfitPct = cfg.TakeProfitPct
		}

		if a.AllocationPct < 0 || a.AllocationPct > 1 {
			return nil, fmt.Errorf("load assets: %s allocation_pct %v out of (0,1]", a.Name, a.AllocationPct)
		}
		assets = append(assets, a)
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("load assets: no enabled assets in %s", path)
	}
	return assets, nil
}
