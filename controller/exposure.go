package controller

import "math"

const (
	// PWMax is the pulse width in microseconds of a channel at full power and weight
	PWMax = 14000
	// PWLSCI is the fixed pulse width of the coherent channel in speckle-contrast mode
	PWLSCI = 7000
	// CoherentChannel is the high-coherence laser channel
	CoherentChannel = 14

	// PWRStart is the power emitted before auto-exposure has a measurement to work from
	PWRStart float32 = 0.2
	PWRMin   float32 = 0.01
	PWRMax   float32 = 1.0
	// PWRMountInitial is the rotation mount power set at startup
	PWRMountInitial float32 = 0.1

	// TargetIntensity is the mean image intensity auto-exposure drives toward
	TargetIntensity = 128
	// MaxIntensity is the largest 8-bit sample value
	MaxIntensity = 255

	// SyncThreshold is the odd-field mean that marks arrival of the sync pulse
	SyncThreshold = 40
	// RotationMargin is the number of steps beyond the pipeline offset before the rotation mount
	// leaves its start power
	RotationMargin = 20

	powerCap float32 = 0.999
)

// UpdatePower returns the power that would have produced TargetIntensity, given that prevPower
// produced prevIntensity. The intensity is modeled as saturating at MaxIntensity+1 so a single
// sample determines the curve.
func UpdatePower(prevIntensity, prevPower float32) float32 {
	const (
		yMax   = float32(MaxIntensity + 1)
		target = float32(TargetIntensity)
	)

	alpha := (yMax - target) * PWRMax
	p := (yMax - prevIntensity) * prevPower * PWRMax / ((target-prevIntensity)*prevPower + alpha)

	return min(p, powerCap)
}

// ClampPower limits p to [PWRMin, PWRMax]
func ClampPower(p float32) float32 {
	if math.IsNaN(float64(p)) {
		return PWRMin
	}
	return max(PWRMin, min(p, PWRMax))
}
