// File: internal/config/humanoid_config.go
// Tunable parameters for the humanoid interaction simulation: pointer motion
// physics, typing cadence, and error simulation. Loaded through Viper so a
// session's "personality" can be adjusted without code changes.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig controls the models that generate human-like input.
type HumanoidConfig struct {
	// Pointer motion.
	CurveSteps      int     `mapstructure:"curve_steps" yaml:"curve_steps"`
	Randomization   float64 `mapstructure:"randomization" yaml:"randomization"`
	PerlinAmplitude float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	StepDelayMin    time.Duration `mapstructure:"step_delay_min" yaml:"step_delay_min"`
	StepDelayMax    time.Duration `mapstructure:"step_delay_max" yaml:"step_delay_max"`
	IdleWanderLegs  int     `mapstructure:"idle_wander_legs" yaml:"idle_wander_legs"`

	// Typing cadence.
	TypingDelayMin time.Duration `mapstructure:"typing_delay_min" yaml:"typing_delay_min"`
	TypingDelayMax time.Duration `mapstructure:"typing_delay_max" yaml:"typing_delay_max"`
	HesitationRate float64       `mapstructure:"hesitation_rate" yaml:"hesitation_rate"`
	HesitationMin  time.Duration `mapstructure:"hesitation_min" yaml:"hesitation_min"`
	HesitationMax  time.Duration `mapstructure:"hesitation_max" yaml:"hesitation_max"`

	// TypoRate is the probability of emitting a wrong neighboring key that is
	// then corrected with a backspace. Zero disables typo simulation.
	TypoRate float64 `mapstructure:"typo_rate" yaml:"typo_rate"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.curve_steps", 40)
	v.SetDefault("humanoid.randomization", 0.7)
	v.SetDefault("humanoid.perlin_amplitude", 1.5)
	v.SetDefault("humanoid.step_delay_min", "4ms")
	v.SetDefault("humanoid.step_delay_max", "12ms")
	v.SetDefault("humanoid.idle_wander_legs", 2)

	v.SetDefault("humanoid.typing_delay_min", "50ms")
	v.SetDefault("humanoid.typing_delay_max", "150ms")
	v.SetDefault("humanoid.hesitation_rate", 0.15)
	v.SetDefault("humanoid.hesitation_min", "200ms")
	v.SetDefault("humanoid.hesitation_max", "500ms")
	v.SetDefault("humanoid.typo_rate", 0.0)
}

// Validate checks ranges and orderings of the humanoid parameters.
func (h *HumanoidConfig) Validate() error {
	if h.CurveSteps < 5 {
		return fmt.Errorf("curve_steps must be at least 5")
	}
	if h.Randomization < 0 || h.Randomization > 1 {
		return fmt.Errorf("randomization must be within [0, 1]")
	}
	if h.TypingDelayMin <= 0 || h.TypingDelayMax < h.TypingDelayMin {
		return fmt.Errorf("typing delay range [%v, %v] is invalid", h.TypingDelayMin, h.TypingDelayMax)
	}
	if h.HesitationRate < 0 || h.HesitationRate > 1 {
		return fmt.Errorf("hesitation_rate must be within [0, 1]")
	}
	if h.HesitationMin <= 0 || h.HesitationMax < h.HesitationMin {
		return fmt.Errorf("hesitation range [%v, %v] is invalid", h.HesitationMin, h.HesitationMax)
	}
	if h.TypoRate < 0 || h.TypoRate > 0.5 {
		return fmt.Errorf("typo_rate must be within [0, 0.5]")
	}
	if h.StepDelayMin < 0 || h.StepDelayMax < h.StepDelayMin {
		return fmt.Errorf("step delay range [%v, %v] is invalid", h.StepDelayMin, h.StepDelayMax)
	}
	return nil
}
