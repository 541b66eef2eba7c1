package services

import (
	"delivery-estimate-service/internal/config"
	"sync/atomic"
)

// Settings holds the current estimation parameters. Readers always see a
// complete, validated config; writers swap it as a whole.
type Settings struct {
	p atomic.Pointer[config.Estimation]
}

func NewSettings(cfg config.Estimation) (*Settings, error) {
	s := &Settings{}
	if err := s.Store(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Load() config.Estimation {
	return *s.p.Load()
}

// Store validates cfg and replaces the current parameters.
func (s *Settings) Store(cfg config.Estimation) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.p.Store(&cfg)
	return nil
}
