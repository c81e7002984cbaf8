package pass

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// LensAnimator eases the depth of field focus of a LightPass towards a new focal distance.
// Call Update once per frame with the frame time.
type LensAnimator struct {
	pass    *LightPass
	focal   *gween.Tween
	maxBlur *gween.Tween
	Done    bool
}

// NewLensAnimator starts a transition of the pass lens from its current values.
//
// Parameters:
//   - p: the light pass to animate
//   - focalDistance: the target focal distance
//   - maxBlurDistance: the target max blur distance
//   - duration: the transition time in seconds
//   - easeFn: the easing function, ease.Linear when nil
//
// Returns:
//   - *LensAnimator: the animator
func NewLensAnimator(p *LightPass, focalDistance, maxBlurDistance, duration float32, easeFn ease.TweenFunc) *LensAnimator {
	if p == nil {
		panic("pass: NewLensAnimator requires a LightPass")
	}
	if easeFn == nil {
		easeFn = ease.Linear
	}
	focal, maxBlur := p.LensProperties()
	return &LensAnimator{
		pass:    p,
		focal:   gween.New(focal, focalDistance, duration, easeFn),
		maxBlur: gween.New(maxBlur, maxBlurDistance, duration, easeFn),
	}
}

// Update advances the transition by dt seconds and writes the lens values to the pass.
// Done is set once both values reach their targets.
func (a *LensAnimator) Update(dt float32) {
	if a.Done {
		return
	}
	focal, focalDone := a.focal.Update(dt)
	maxBlur, blurDone := a.maxBlur.Update(dt)
	a.pass.SetLensProperties(focal, maxBlur)
	a.Done = focalDone && blurDone
}
