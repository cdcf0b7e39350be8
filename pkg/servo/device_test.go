package servo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
)

var t0 = time.Unix(1000, 0)

type testRig struct {
	dev    *Device
	driver *SimDriver
	bus    *channels.Bus
	status *link.Status
	kernel *framework.Kernel
}

func newTestRig(t *testing.T, outs ...config.PwmChannel) *testRig {
	cfg := config.Default()
	cfg.Outputs = outs
	r := &testRig{
		driver: NewSimDriver(),
		bus:    channels.NewBus(),
		status: link.NewStatus(),
	}
	pins := make([]int, len(outs))
	for n := range pins {
		pins[n] = 10 + n
	}
	r.dev = New(r.driver, config.NewStore(cfg), r.bus, r.status, pins)
	r.kernel = framework.NewKernel().Register(r.dev)
	require.NoError(t, r.kernel.Boot(t0))
	r.status.SetLinkQuality(100)
	r.status.SetState(link.Connected)
	r.kernel.TriggerEvent()
	return r
}

func (r *testRig) publish(at time.Duration, vals ...uint16) {
	var v channels.Values
	copy(v[:], vals)
	r.bus.Publish(&v, t0.Add(at))
}

func (r *testRig) pass(at time.Duration) {
	r.kernel.RunPass(t0.Add(at))
}

func TestServoMaxValue(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{InputChannel: 0, Failsafe: 512, Mode: config.Mode50Hz})
	r.publish(0, channels.Max)
	r.pass(0)
	out := r.driver.Outputs()[0]
	require.Equal(t, OutputPulse, out.Kind)
	require.Equal(t, channels.MaxMicros, out.Micros)
	require.Equal(t, 20*time.Millisecond, out.Refresh)
	require.Equal(t, 10, out.Pin)
	require.Equal(t, []State{Normal}, r.dev.States())
}

func TestServoClamp(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Mode: config.Mode50Hz}, config.PwmChannel{InputChannel: 1, Mode: config.Mode50Hz})
	r.publish(0, channels.Limit, 1)
	r.pass(0)
	outs := r.driver.Outputs()
	require.Equal(t, channels.MaxMicros, outs[0].Micros)
	require.Equal(t, channels.MinMicros, outs[1].Micros)
}

func TestServoAbsTimeout(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Failsafe: 100, Mode: config.Mode50Hz})
	r.publish(0, channels.Mid)
	r.pass(0)
	require.Equal(t, 1500, r.driver.Outputs()[0].Micros)
	r.pass(500 * time.Millisecond)
	require.Equal(t, []State{Normal}, r.dev.States())
	r.pass(1001 * time.Millisecond)
	require.Equal(t, []State{Failsafe}, r.dev.States())
	require.Equal(t, 1088, r.driver.Outputs()[0].Micros)

	// disarmed until fresh data arrives
	writes := r.driver.Outputs()[0].Writes
	r.pass(2000 * time.Millisecond)
	require.Equal(t, writes, r.driver.Outputs()[0].Writes)

	r.publish(2001*time.Millisecond, channels.Max)
	r.pass(2001 * time.Millisecond)
	require.Equal(t, []State{Normal}, r.dev.States())
	require.Equal(t, channels.MaxMicros, r.driver.Outputs()[0].Micros)
}

func TestServoLinkQualityZero(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Failsafe: 512, Mode: config.Mode50Hz})
	r.publish(0, channels.Mid)
	r.pass(0)
	r.status.SetLinkQuality(0)
	r.pass(time.Millisecond)
	require.Equal(t, []State{Failsafe}, r.dev.States())
	require.Equal(t, 1500, r.driver.Outputs()[0].Micros)
}

func TestServoFreshFrameBeforeLinkQualityZero(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Failsafe: 0, Mode: config.Mode50Hz})
	r.publish(0, channels.Max)
	r.status.SetLinkQuality(0)

	// fresh data is output first, failsafe follows on the next pass.
	r.pass(0)
	require.Equal(t, []State{Normal}, r.dev.States())
	require.Equal(t, channels.MaxMicros, r.driver.Outputs()[0].Micros)
	r.pass(time.Millisecond)
	require.Equal(t, []State{Failsafe}, r.dev.States())
	require.Equal(t, config.FailsafeBaseMicros, r.driver.Outputs()[0].Micros)
}

func TestServoNoFailsafeBeforeData(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Mode: config.Mode50Hz})
	r.status.SetLinkQuality(0)
	r.pass(0)
	r.pass(5 * time.Second)
	require.Equal(t, []State{Uninitialized}, r.dev.States())
	require.Zero(t, r.driver.Outputs()[0].Writes)
}

func TestServoInversion(t *testing.T) {
	r := newTestRig(t,
		config.PwmChannel{InputChannel: 0, Mode: config.Mode50Hz},
		config.PwmChannel{InputChannel: 0, Inverted: true, Mode: config.Mode50Hz})
	for v := channels.Min; v <= channels.Max; v += 7 {
		r.publish(time.Duration(v)*time.Millisecond, v)
		r.pass(time.Duration(v) * time.Millisecond)
		outs := r.driver.Outputs()
		require.Equal(t, 3000, outs[0].Micros+outs[1].Micros, "value %d", v)
	}
}

func TestServoNarrow(t *testing.T) {
	for narrow := uint8(0); narrow <= config.MaxNarrow; narrow++ {
		r := newTestRig(t, config.PwmChannel{Mode: config.Mode400Hz, Narrow: narrow})
		r.publish(0, channels.Max)
		r.pass(0)
		require.Equal(t, channels.MaxMicros/(int(narrow)+1), r.driver.Outputs()[0].Micros)
	}
}

func TestServoFailsafeIgnoresInversion(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Failsafe: 200, Inverted: true, Mode: config.Mode50Hz})
	r.publish(0, channels.Max)
	r.pass(0)
	require.Equal(t, channels.MinMicros, r.driver.Outputs()[0].Micros)
	r.status.SetLinkQuality(0)
	r.pass(time.Millisecond)
	require.Equal(t, 1188, r.driver.Outputs()[0].Micros)
}

func TestServoUnreceivedChannelGetsFailsafe(t *testing.T) {
	r := newTestRig(t,
		config.PwmChannel{InputChannel: 0, Failsafe: 512, Mode: config.Mode50Hz},
		config.PwmChannel{InputChannel: 5, Failsafe: 0, Mode: config.Mode50Hz})
	r.publish(0, channels.Mid)
	r.pass(0)
	require.Equal(t, []State{Normal, Uninitialized}, r.dev.States())
	r.status.SetLinkQuality(0)
	r.pass(time.Millisecond)
	require.Equal(t, []State{Failsafe, Failsafe}, r.dev.States())
	require.Equal(t, 988, r.driver.Outputs()[1].Micros)
}

func TestServoModes(t *testing.T) {
	r := newTestRig(t,
		config.PwmChannel{Mode: config.ModeOnOff},
		config.PwmChannel{Mode: config.Mode10KHzDuty},
		config.PwmChannel{Mode: config.ModeDShot},
		config.PwmChannel{Mode: config.ModeSerial})
	require.Equal(t, PinDisconnected, r.driver.Outputs()[3].Pin)
	require.Equal(t, time.Millisecond, r.driver.Outputs()[2].Refresh)

	r.publish(0, channels.Max)
	r.pass(0)
	outs := r.driver.Outputs()
	require.True(t, outs[0].Digital)
	require.Equal(t, 1.0, outs[1].Duty)
	require.Equal(t, DShotMax, outs[2].DShot)
	require.Equal(t, OutputNone, outs[3].Kind)

	r.publish(time.Millisecond, channels.Mid)
	r.pass(time.Millisecond)
	outs = r.driver.Outputs()
	require.False(t, outs[0].Digital)
	require.Equal(t, 0.5, outs[1].Duty)
	require.Equal(t, uint16(1047), outs[2].DShot)
}

func TestDShotCommand(t *testing.T) {
	testCases := []struct {
		us  int
		cmd uint16
	}{
		{988, DShotMin},
		{1000, DShotMin},
		{1001, 49},
		{1500, 1047},
		{2000, 2047},
		{2012, DShotMax},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.cmd, DShotCommand(tc.us), "us %d", tc.us)
	}
}

func TestServoEvents(t *testing.T) {
	r := newTestRig(t, config.PwmChannel{Failsafe: 512, Mode: config.Mode50Hz})
	_, ok := r.kernel.NextWake(r.dev)
	require.False(t, ok)
	r.pass(0)
	at, ok := r.kernel.NextWake(r.dev)
	require.True(t, ok)
	require.Equal(t, t0, at)

	r.publish(0, channels.Max)
	r.pass(0)
	r.status.SetState(link.Disconnected)
	r.kernel.TriggerEvent()
	r.pass(time.Millisecond)
	require.Equal(t, []State{Failsafe}, r.dev.States())
	_, ok = r.kernel.NextWake(r.dev)
	require.False(t, ok)

	r.status.SetState(link.WifiUpdate)
	r.kernel.TriggerEvent()
	r.pass(2 * time.Millisecond)
	require.True(t, r.driver.Stopped())
	_, ok = r.kernel.NextWake(r.dev)
	require.False(t, ok)
}

type failingDriver struct {
	*SimDriver
}

func (failingDriver) Initialize([]int) error {
	return errors.New("pins busy")
}

func TestServoInitializeFailure(t *testing.T) {
	dev := New(failingDriver{NewSimDriver()}, config.NewStore(config.Default()), channels.NewBus(), link.NewStatus(), []int{1})
	err := framework.NewKernel().Register(dev).Init()
	require.Error(t, err)
	require.Contains(t, err.Error(), "pins busy")
}

func TestServoIdleWithoutPins(t *testing.T) {
	dev := New(NewSimDriver(), config.NewStore(config.Default()), channels.NewBus(), link.NewStatus(), nil)
	require.NoError(t, dev.Initialize())
	require.Equal(t, framework.Never, dev.Event(t0))
	require.Equal(t, framework.Never, dev.Timeout(t0))
}
