package game_object

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// GameObjectBuilderOption is a functional option for configuring a GameObject during construction.
type GameObjectBuilderOption func(*gameObject)

// WithLayer places the object's instance on a scene layer. Defaults to layer 0.
//
// Parameters:
//   - l: the layer
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the layer
func WithLayer(l *scene.Layer) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.layer = l
	}
}

// WithPosition sets the initial translation of the GameObject.
//
// Parameters:
//   - position: the world-space position
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the position
func WithPosition(position mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Translation = position
	}
}

// WithRotation sets the initial orientation of the GameObject.
//
// Parameters:
//   - rotation: the orientation
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the rotation
func WithRotation(rotation mgl32.Quat) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Rotation = rotation
	}
}

// WithScale sets the initial scale of the GameObject.
//
// Parameters:
//   - scale: the scale factors along each axis
//
// Returns:
//   - GameObjectBuilderOption: functional option to set the scale
func WithScale(scale mgl32.Vec3) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.transform.Scale = scale
	}
}

// WithLight attaches a Light that follows the GameObject's position.
//
// Parameters:
//   - l: the light to attach
//
// Returns:
//   - GameObjectBuilderOption: functional option to attach the light
func WithLight(l light.Light) GameObjectBuilderOption {
	return func(obj *gameObject) {
		obj.attachedLight = l
	}
}
