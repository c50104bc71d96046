package app

import (
	"time"

	"iris/internal/asr"
	"iris/internal/audio"
	"iris/internal/config"
	"iris/internal/voice"
)

// NewCall builds a voice session over the given speech front end. A missing
// ringtone is logged and the call connects without ringing.
func (a *App) NewCall(mic asr.Microphone, rec asr.Recognizer, onUpdate func(voice.Update)) (*voice.Session, error) {
	cfg := a.Config
	player, err := audio.NewPlayer(cfg.Player, a.Logger)
	if err != nil {
		return nil, err
	}
	ring, err := audio.EnsureRingtone(cfg.Voice.RingtonePath)
	if err != nil {
		a.Logger.WithError(err).Warn("ringtone unavailable")
		ring = audio.Clip{}
	}
	return voice.New(voice.Deps{
		Mic:        mic,
		Recognizer: rec,
		Player:     player,
		Dialer: voice.WSDialer{
			UserAgent:        cfg.Voice.UserAgent,
			HandshakeTimeout: config.Seconds(cfg.Voice.HandshakeTimeoutSec),
		},
		Profiles: a.Visitor,
		Logger:   a.Logger,
	}, voice.Options{
		URL:       cfg.Voice.URL,
		UserAgent: cfg.Voice.UserAgent,
		Ringtone:  ring,
		EndDelay:  time.Duration(cfg.Voice.EndDelayMS) * time.Millisecond,
		OnUpdate:  onUpdate,
	}), nil
}
