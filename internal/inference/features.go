package inference

import (
	"math"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

// TimestampLayout is the local time format of training samples.
const TimestampLayout = "2006-01-02 15:04:05"

// Features is the model input. All fields are required.
type Features struct {
	Hour                 int     `json:"hour"`
	Month                int     `json:"month"`
	LocalTempC           float64 `json:"local_temp_c"`
	LocalHumidityPercent float64 `json:"local_humidity_percent"`
	LocalPressureHPa     float64 `json:"local_pressure_hpa"`
	LocalLightLux        float64 `json:"local_light_lux"`
	HubTempC             float64 `json:"hub_temp_c"`
	HubHumidityPercent   float64 `json:"hub_humidity_percent"`
	HubLightLevel        float64 `json:"hub_light_level"`
}

// TrainingSample is one labelled row for /add_training_data.
type TrainingSample struct {
	Features
	Timestamp          string  `json:"timestamp"`
	TuyaCurtainPercent int     `json:"tuya_curtain_percent"`
	TempDiff           float64 `json:"temp_diff"`
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FeaturesFrom builds model input from a telemetry snapshot taken at now.
// It reports false when any sensor value is missing.
func FeaturesFrom(t state.Telemetry, now time.Time) (Features, bool) {
	fields := []*float64{
		t.LocalTempC, t.LocalHumidityPercent, t.LocalPressureHPa, t.LocalLightLux,
		t.HubTempC, t.HubHumidityPercent, t.HubLightLevel,
	}
	for _, f := range fields {
		if f == nil {
			return Features{}, false
		}
	}
	return Features{
		Hour:                 now.Hour(),
		Month:                int(now.Month()),
		LocalTempC:           Round1(*t.LocalTempC),
		LocalHumidityPercent: Round1(*t.LocalHumidityPercent),
		LocalPressureHPa:     Round1(*t.LocalPressureHPa),
		LocalLightLux:        Round1(*t.LocalLightLux),
		HubTempC:             Round1(*t.HubTempC),
		HubHumidityPercent:   Round1(*t.HubHumidityPercent),
		HubLightLevel:        Round1(*t.HubLightLevel),
	}, true
}

// NewTrainingSample labels f with the curtain percent. temp_diff is
// computed from the rounded temperatures.
func NewTrainingSample(f Features, at time.Time, curtainPercent int) TrainingSample {
	return TrainingSample{
		Features:           f,
		Timestamp:          at.Format(TimestampLayout),
		TuyaCurtainPercent: curtainPercent,
		TempDiff:           Round1(f.LocalTempC - f.HubTempC),
	}
}
