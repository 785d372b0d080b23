//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/calvinmclean/endolight/firmware/device"
	"github.com/calvinmclean/endolight/firmware/scheduler"
)

func main() {
	lasers := device.Lasers{
		machine.GP0, machine.GP1, machine.GP2, machine.GP3, machine.GP4,
		machine.GP5, machine.GP6, machine.GP7, machine.GP8, machine.GP9,
		machine.GP10, machine.GP11, machine.GP12, machine.GP13, machine.GP14,
	}
	lasers.Configure()

	machine.InitADC()
	monitor := device.NewMonitor([3]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2}, 16)

	timers := &device.Timers{}

	sched, err := scheduler.New(
		scheduler.Config{Depth: scheduler.DefaultDepth, SettleDelay: scheduler.DefaultSettleDelay},
		device.Serial{Serialer: machine.Serial},
		&lasers,
		timers,
		monitor,
	)
	if err != nil {
		panic(err)
	}
	timers.OnExpire(sched.Expire)

	fieldSync, err := device.NewFieldSync(machine.GP15)
	if err != nil {
		panic(err)
	}

	for {
		if level, ok := fieldSync.Edge(); ok {
			sched.OnFieldSync(level)
		}
		timers.Run(time.Now())

		err := sched.Poll()
		if err != nil {
			println("error:", err.Error())
		}
	}
}
