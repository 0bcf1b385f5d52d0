package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// pulseDevice drives the master volume of one PulseAudio/PipeWire sink.
//
// The client is created lazily and dropped on transport errors, so a sound
// server restart costs one failed command instead of the whole session.
type pulseDevice struct {
	mu     sync.Mutex
	client *pulse.Client
	sink   string
	logger *slog.Logger
}

func newPulseDevice(sink string, logger *slog.Logger) (*pulseDevice, error) {
	if sink == "" {
		sink = defaultPulseSink
	}
	d := &pulseDevice{sink: sink, logger: logger}
	if err := d.ensureClient(); err != nil {
		return nil, err
	}
	return d, nil
}

// ensureClient must be called with d.mu held, except from the constructor.
func (d *pulseDevice) ensureClient() error {
	if d.client != nil {
		return nil
	}
	c, err := pulse.NewClient(
		pulse.ClientApplicationName("volbridge"),
		pulse.ClientApplicationIconName("audio-volume-high"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w: %w", ErrDeviceUnavailable, err)
	}
	d.client = c
	d.logger.Debug("connected to pulse server", "sink", d.sink)
	return nil
}

// request runs one raw protocol request, reconnecting first if needed.
func (d *pulseDevice) request(op string, req proto.RequestArgs, rpl proto.Reply) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureClient(); err != nil {
		return err
	}
	if err := d.client.RawRequest(req, rpl); err != nil {
		if isConnError(err) {
			d.client.Close()
			d.client = nil
			return fmt.Errorf("%s: %w: %w", op, ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *pulseDevice) sinkInfo() (*proto.GetSinkInfoReply, error) {
	var info proto.GetSinkInfoReply
	req := &proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: d.sink}
	if err := d.request("get sink info", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *pulseDevice) GetVolumeScalar() (VolumeScalar, error) {
	info, err := d.sinkInfo()
	if err != nil {
		return 0, err
	}
	return channelScalar(info.ChannelVolumes), nil
}

func (d *pulseDevice) SetVolumeScalar(s VolumeScalar) error {
	if math.IsNaN(float64(s)) {
		return errors.New("set volume scalar: NaN")
	}
	info, err := d.sinkInfo()
	if err != nil {
		return err
	}
	n := len(info.ChannelVolumes)
	if n == 0 {
		n = 1
	}
	raw := uint32(math.Round(float64(s.Clamp()) * float64(proto.VolumeNorm)))
	vols := make(proto.ChannelVolumes, n)
	for i := range vols {
		vols[i] = raw
	}
	req := &proto.SetSinkVolume{SinkIndex: proto.Undefined, SinkName: d.sink, ChannelVolumes: vols}
	return d.request("set sink volume", req, nil)
}

func (d *pulseDevice) GetVolumeDecibel() (float64, error) {
	s, err := d.GetVolumeScalar()
	if err != nil {
		return 0, err
	}
	return pulseScalarToDB(s), nil
}

func (d *pulseDevice) GetVolumeRange() (VolumeRange, error) {
	info, err := d.sinkInfo()
	if err != nil {
		return VolumeRange{}, err
	}
	return sinkVolumeRange(info), nil
}

// sinkVolumeRange reports the software volume range of a sink. Pulse volumes
// are cubic, so the dB step is the span divided evenly over the volume steps.
func sinkVolumeRange(info *proto.GetSinkInfoReply) VolumeRange {
	rng := VolumeRange{MinDB: pulseMinDB, MaxDB: 0}
	steps := info.NumVolumeSteps
	if steps < 2 {
		steps = uint32(proto.VolumeNorm) + 1
	}
	rng.StepDB = (rng.MaxDB - rng.MinDB) / float64(steps-1)
	return rng
}

func (d *pulseDevice) GetMute() (bool, error) {
	info, err := d.sinkInfo()
	if err != nil {
		return false, err
	}
	return info.Mute, nil
}

func (d *pulseDevice) SetMute(mute bool) error {
	req := &proto.SetSinkMute{SinkIndex: proto.Undefined, SinkName: d.sink, Mute: mute}
	return d.request("set sink mute", req, nil)
}

func (d *pulseDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	return nil
}

// channelScalar reports the loudest channel, which is what desktop mixers show.
func channelScalar(vols proto.ChannelVolumes) VolumeScalar {
	var hi uint32
	for _, v := range vols {
		if v > hi {
			hi = v
		}
	}
	return VolumeScalar(float64(hi) / float64(proto.VolumeNorm)).Clamp()
}

// pulseScalarToDB converts a linear slider position to dB using the cubic
// software volume curve (dB = 60*log10(s)).
func pulseScalarToDB(s VolumeScalar) float64 {
	if s <= 0 {
		return pulseMinDB
	}
	db := 60 * math.Log10(float64(s))
	if db < pulseMinDB {
		return pulseMinDB
	}
	return db
}

func isConnError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
