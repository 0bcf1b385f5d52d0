package main

import (
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/assert"
)

func TestChannelScalar(t *testing.T) {
	half := uint32(proto.VolumeNorm / 2)
	assert.Equal(t, VolumeScalar(0.5), channelScalar(proto.ChannelVolumes{half, half}))
	assert.Equal(t, VolumeScalar(1), channelScalar(proto.ChannelVolumes{uint32(proto.VolumeNorm), half}),
		"the loudest channel wins")
	assert.Equal(t, VolumeScalar(1), channelScalar(proto.ChannelVolumes{uint32(proto.VolumeNorm) * 2}),
		"boosted volumes clamp to 1")
	assert.Equal(t, VolumeScalar(0), channelScalar(nil))
}

func TestPulseScalarToDB(t *testing.T) {
	assert.Equal(t, 0.0, pulseScalarToDB(1))
	assert.InDelta(t, -18.06, pulseScalarToDB(0.5), 0.01)
	assert.Equal(t, pulseMinDB, pulseScalarToDB(0))
	assert.Equal(t, pulseMinDB, pulseScalarToDB(1e-9), "floor at the minimum")
}

func TestIsConnError(t *testing.T) {
	assert.True(t, isConnError(io.EOF))
	assert.True(t, isConnError(fmt.Errorf("read: %w", net.ErrClosed)))
	assert.True(t, isConnError(&net.OpError{Op: "dial", Net: "unix", Err: io.ErrUnexpectedEOF}))
	assert.False(t, isConnError(errBoom))
}

func TestSinkVolumeRange(t *testing.T) {
	rng := sinkVolumeRange(&proto.GetSinkInfoReply{NumVolumeSteps: 5})
	assert.Equal(t, pulseMinDB, rng.MinDB)
	assert.Equal(t, 0.0, rng.MaxDB)
	assert.Equal(t, 30.0, rng.StepDB)
	assert.Equal(t, 25, rng.TolerancePercent())

	// Hardware sinks report the full software range.
	rng = sinkVolumeRange(&proto.GetSinkInfoReply{NumVolumeSteps: uint32(proto.VolumeNorm) + 1})
	assert.InDelta(t, 120.0/float64(proto.VolumeNorm), rng.StepDB, 1e-12)
	assert.Equal(t, 1, rng.TolerancePercent())

	assert.Equal(t, rng, sinkVolumeRange(&proto.GetSinkInfoReply{}), "missing step count falls back to the norm")
}
