package srs

import "fmt"

// Params holds the constants of the SM-2 derived algorithm.
type Params struct {
	InitialEase     float64 `json:"initial_ease" validate:"gte=1.3"`
	AgainPenalty    float64 `json:"again_penalty" validate:"gte=0"`
	HardPenalty     float64 `json:"hard_penalty" validate:"gte=0"`
	EasyBonus       float64 `json:"easy_bonus" validate:"gte=0"`
	FirstInterval   int     `json:"first_interval" validate:"gte=1"`
	SecondInterval  int     `json:"second_interval" validate:"gtefield=FirstInterval"`
	HardMultiplier  float64 `json:"hard_multiplier" validate:"gt=0"`
	EasyMultiplier  float64 `json:"easy_multiplier" validate:"gt=0"`
	MaximumInterval int     `json:"maximum_interval" validate:"gtefield=SecondInterval"`
}

// DefaultParams returns the classic SM-2 values: 2.5 initial ease, one and
// six day graduation intervals.
func DefaultParams() Params {
	return Params{
		InitialEase:     2.5,
		AgainPenalty:    0.20,
		HardPenalty:     0.15,
		EasyBonus:       0.15,
		FirstInterval:   1,
		SecondInterval:  6,
		HardMultiplier:  0.8,
		EasyMultiplier:  1.3,
		MaximumInterval: 36500,
	}
}

// Validate reports whether p can drive a scheduler.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("srs: invalid parameters: %s", describe(err))
	}
	return nil
}
