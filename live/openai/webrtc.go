package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Opus over WebRTC always runs at 48 kHz. Frames are 20 ms of mono audio.
const (
	opusRate      = 48000
	opusFrameSize = opusRate / 50
	frameDuration = 20 * time.Millisecond

	// maxDecodedSamples is 120 ms at 48 kHz, the longest opus packet.
	maxDecodedSamples = 5760
)

// transport is the media and event path of one call.
type transport interface {
	sendText(text string) error
	writeFrame(samples []float32) error
	close() error
}

// callbacks are invoked from pion goroutines.
type callbacks struct {
	onOpen    func()
	onMessage func(data []byte)
	onAudio   func(samples []float32)
	onClosed  func(reason string)
	onFailure func(err error)
}

// peer is a WebRTC call to the Realtime API.
//
// Memory layout: the encoder path is touched for every frame and sits first.
type peer struct {
	// ─── Hot path (audio encoding) ───────────────────────────────────────────
	encMu   sync.Mutex
	encoder *opuscodec.Encoder
	track   *webrtc.TrackLocalStaticSample
	opusBuf []byte

	// ─── Cold path (connection state) ────────────────────────────────────────
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	closeOnce sync.Once
	closing   chan struct{}
}

// dialPeer negotiates a call using an ephemeral key.
func dialPeer(ctx context.Context, endpoint, key string, cb callbacks) (*peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &peer{pc: pc, opusBuf: make([]byte, 1275), closing: make(chan struct{})}
	if err := p.setup(cb); err != nil {
		_ = pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		_ = pc.Close()
		return nil, ctx.Err()
	}

	answer, err := exchangeSDP(ctx, endpoint, pc.LocalDescription().SDP, key)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("exchange SDP: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	return p, nil
}

func (p *peer) setup(cb callbacks) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: opusRate,
			Channels:  2,
		},
		"audio",
		"glance-mic",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := p.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	enc, err := opuscodec.NewEncoder(opusRate, 1, opuscodec.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	dc, err := p.pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}

	p.track = track
	p.encoder = enc
	p.dc = dc

	dc.OnOpen(func() {
		slog.Info("data channel opened")
		cb.onOpen()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		cb.onMessage(msg.Data)
	})
	dc.OnClose(func() {
		if !p.isClosing() {
			cb.onClosed("data channel closed")
		}
	})

	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Info("remote audio track", "codec", remote.Codec().MimeType)
		go readRemote(remote, cb.onAudio)
	})

	p.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ICE state", "state", state.String())
		if p.isClosing() {
			return
		}
		switch state {
		case webrtc.ICEConnectionStateFailed:
			cb.onFailure(fmt.Errorf("ICE connection %s", state.String()))
		case webrtc.ICEConnectionStateClosed:
			cb.onClosed("ICE connection closed")
		}
	})
	return nil
}

// readRemote decodes the model's voice until the track ends.
func readRemote(remote *webrtc.TrackRemote, onAudio func([]float32)) {
	dec, err := opuscodec.NewDecoder(opusRate, 1)
	if err != nil {
		slog.Error("create opus decoder", "error", err)
		return
	}
	buf := make([]float32, maxDecodedSamples)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.DecodeFloat32(pkt.Payload, buf)
		if err != nil {
			slog.Debug("opus decode failed", "error", err)
			continue
		}
		out := make([]float32, n)
		copy(out, buf[:n])
		onAudio(out)
	}
}

func (p *peer) isClosing() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

func (p *peer) sendText(text string) error {
	if p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("data channel not open")
	}
	return p.dc.SendText(text)
}

// writeFrame encodes one 20 ms mono frame and writes it to the track.
func (p *peer) writeFrame(samples []float32) error {
	p.encMu.Lock()
	defer p.encMu.Unlock()

	n, err := p.encoder.EncodeFloat32(samples, p.opusBuf)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}
	// WriteSample copies the data internally
	return p.track.WriteSample(media.Sample{Data: p.opusBuf[:n], Duration: frameDuration})
}

func (p *peer) close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closing)
		err = p.pc.Close()
	})
	return err
}
