// Package config loads plant calibration files into model.PlantConfig.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/meridiansim/plant-startup-simulator/model"
)

// LoadPlantConfig reads a plant calibration file (format inferred from the
// extension) over the built-in defaults. Keys absent from the file keep their
// default values. An empty path returns the defaults unchanged.
func LoadPlantConfig(path string) (model.PlantConfig, error) {
	cfg := model.DefaultPlantConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return model.PlantConfig{}, fmt.Errorf("read plant config %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return model.PlantConfig{}, fmt.Errorf("parse plant config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return model.PlantConfig{}, fmt.Errorf("plant config %q: %w", path, err)
	}
	return cfg, nil
}
