package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meridiansim/plant-startup-simulator/model"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plant.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadPlantConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadPlantConfig("")
	if err != nil {
		t.Fatalf("LoadPlantConfig(\"\") error: %v", err)
	}
	if cfg != model.DefaultPlantConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadPlantConfigOverridesOnlyListedKeys(t *testing.T) {
	path := writeConfig(t, `
sg_count: 4
heater_capacity_btu_per_hr: 7.0e6
initial_temp_f: 110
`)

	cfg, err := LoadPlantConfig(path)
	if err != nil {
		t.Fatalf("LoadPlantConfig error: %v", err)
	}

	if cfg.SGCount != 4 {
		t.Fatalf("SGCount = %d, want 4", cfg.SGCount)
	}
	if cfg.HeaterCapacityBTUPerHr != 7.0e6 {
		t.Fatalf("HeaterCapacityBTUPerHr = %v, want 7.0e6", cfg.HeaterCapacityBTUPerHr)
	}
	if cfg.InitialTempF != 110 {
		t.Fatalf("InitialTempF = %v, want 110", cfg.InitialTempF)
	}

	def := model.DefaultPlantConfig()
	if cfg.PressurizerVolumeFt3 != def.PressurizerVolumeFt3 {
		t.Fatalf("PressurizerVolumeFt3 = %v, want default %v", cfg.PressurizerVolumeFt3, def.PressurizerVolumeFt3)
	}
	if cfg.SolidPressureSetpointPSIA != def.SolidPressureSetpointPSIA {
		t.Fatalf("SolidPressureSetpointPSIA = %v, want default %v", cfg.SolidPressureSetpointPSIA, def.SolidPressureSetpointPSIA)
	}
}

func TestLoadPlantConfigRejectsInvalidCalibration(t *testing.T) {
	path := writeConfig(t, "pressurizer_volume_ft3: -10\n")

	if _, err := LoadPlantConfig(path); err == nil {
		t.Fatal("expected validation error for negative pressurizer volume")
	}
}

func TestLoadPlantConfigMissingFile(t *testing.T) {
	if _, err := LoadPlantConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
