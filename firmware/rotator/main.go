//go:build tinygo

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/easystepper"

	"github.com/calvinmclean/endolight/firmware/commands"
	"github.com/calvinmclean/endolight/firmware/stage"
)

// endstop is a normally open switch to ground on a pulled-up input
type endstop machine.Pin

func (e endstop) Get() bool {
	return !machine.Pin(e).Get()
}

func main() {
	motor, err := easystepper.New(easystepper.DeviceConfig{
		Pin1: machine.GP16, Pin2: machine.GP17, Pin3: machine.GP18, Pin4: machine.GP19,
		StepCount: 4096,
		RPM:       8,
		Mode:      easystepper.ModeEight,
	})
	if err != nil {
		panic(err)
	}
	motor.Configure()

	sw := machine.GP20
	sw.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	s, err := stage.New(motor, endstop(sw), machine.Serial, stage.Config{
		StepsPerDegree: stepsPerDegree(4096, 20, 60),
		BacklashSteps:  40,
		DelayAfterMove: 20 * time.Millisecond,
	})
	if err != nil {
		panic(err)
	}

	commands.Run(s)
}

// stepsPerDegree returns motor steps per degree of plate rotation
// driverTeeth = stepper gear teeth, drivenTeeth = mount gear teeth
func stepsPerDegree(stepsPerRev, driverTeeth, drivenTeeth int) float32 {
	return float32(stepsPerRev) * float32(drivenTeeth) / float32(driverTeeth) / 360
}
