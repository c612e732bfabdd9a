package app

import (
	"fmt"
	"log/slog"

	"go.aimuz.me/glance/audiocapture"
	"go.aimuz.me/glance/capture"
	"go.aimuz.me/glance/playback"
	"go.aimuz.me/glance/session"
)

// openMicrophone acquires the default input at the rate both backends accept.
func openMicrophone() (capture.MicrophoneSource, error) {
	mic, err := audiocapture.Open(audiocapture.Config{})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	slog.Info("microphone acquired", "rate", audiocapture.DefaultSampleRate)
	return mic, nil
}

// OpenOutput opens the speaker used for model speech. It is the controller's
// output factory.
func OpenOutput() (session.Output, error) {
	d, err := playback.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	return d, nil
}
