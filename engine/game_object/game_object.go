package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

type gameObject struct {
	cache    scene.GeometryCache
	instance scene.InstanceHandle

	mu            sync.Mutex
	transform     model.Transform
	attachedLight light.Light

	// construction state consumed by NewGameObject
	layer *scene.Layer

	disposed atomic.Bool
}

// GameObject is a scene entity bound to one instance record of a geometry cache.
// The decomposed transform is kept on the object; every change recomposes the model matrix and
// writes it to the cache, which blocks while the scene is frozen for a frame.
type GameObject interface {
	// Cache returns the geometry cache holding the object's instance.
	//
	// Returns:
	//   - scene.GeometryCache: the cache
	Cache() scene.GeometryCache

	// Instance returns the handle of the object's instance record.
	//
	// Returns:
	//   - scene.InstanceHandle: the instance handle
	Instance() scene.InstanceHandle

	// Transform returns the decomposed transform of the object.
	//
	// Returns:
	//   - model.Transform: translation, rotation and scale
	Transform() model.Transform

	// SetTransform replaces the whole transform.
	//
	// Parameters:
	//   - t: the new transform
	//
	// Returns:
	//   - error: an error if the instance was disposed
	SetTransform(t model.Transform) error

	// SetPosition moves the object, keeping rotation and scale.
	//
	// Parameters:
	//   - position: the new translation
	//
	// Returns:
	//   - error: an error if the instance was disposed
	SetPosition(position mgl32.Vec3) error

	// SetRotation rotates the object, keeping translation and scale.
	//
	// Parameters:
	//   - rotation: the new orientation
	//
	// Returns:
	//   - error: an error if the instance was disposed
	SetRotation(rotation mgl32.Quat) error

	// SetScale scales the object, keeping translation and rotation.
	//
	// Parameters:
	//   - scale: the new scale factors
	//
	// Returns:
	//   - error: an error if the instance was disposed
	SetScale(scale mgl32.Vec3) error

	// Light returns the Light attached to this object, or nil if none is set.
	//
	// Returns:
	//   - light.Light: the attached light or nil
	Light() light.Light

	// SetLight attaches a Light to this object. The light is moved to the object's position now
	// and on every later position change. Pass nil to detach.
	//
	// Parameters:
	//   - l: the Light to attach, or nil to detach
	SetLight(l light.Light)

	// Dispose releases the instance record. Disposing twice is a no-op.
	//
	// Returns:
	//   - error: an error if the cache rejected the handle
	Dispose() error
}

var _ GameObject = &gameObject{}

// NewGameObject creates an instance of a cached model drawn with a material.
//
// Parameters:
//   - cache: the geometry cache holding the model
//   - mat: the material to draw with
//   - modelIndex: the index of the model in the cache
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
//   - error: an error if the cache rejected the instance
func NewGameObject(cache scene.GeometryCache, mat material.Material, modelIndex int, options ...GameObjectBuilderOption) (GameObject, error) {
	if cache == nil {
		panic("game_object: NewGameObject requires a geometry cache")
	}
	obj := &gameObject{
		cache:     cache,
		transform: model.IdentityTransform(),
	}
	for _, option := range options {
		option(obj)
	}

	h, err := cache.AddInstance(mat, modelIndex, obj.layer, obj.transform.Matrix())
	if err != nil {
		return nil, err
	}
	obj.instance = h
	obj.layer = nil
	obj.syncLight()
	return obj, nil
}

func (g *gameObject) Cache() scene.GeometryCache {
	return g.cache
}

func (g *gameObject) Instance() scene.InstanceHandle {
	return g.instance
}

func (g *gameObject) Transform() model.Transform {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transform
}

func (g *gameObject) SetTransform(t model.Transform) error {
	return g.update(func(cur *model.Transform) { *cur = t })
}

func (g *gameObject) SetPosition(position mgl32.Vec3) error {
	return g.update(func(cur *model.Transform) { cur.Translation = position })
}

func (g *gameObject) SetRotation(rotation mgl32.Quat) error {
	return g.update(func(cur *model.Transform) { cur.Rotation = rotation })
}

func (g *gameObject) SetScale(scale mgl32.Vec3) error {
	return g.update(func(cur *model.Transform) { cur.Scale = scale })
}

// update applies fn to the transform and writes the composed matrix to the cache.
func (g *gameObject) update(fn func(cur *model.Transform)) error {
	g.mu.Lock()
	fn(&g.transform)
	m := g.transform.Matrix()
	g.mu.Unlock()

	if err := g.cache.SetTransform(g.instance, m); err != nil {
		return err
	}
	g.syncLight()
	return nil
}

func (g *gameObject) syncLight() {
	g.mu.Lock()
	l, pos := g.attachedLight, g.transform.Translation
	g.mu.Unlock()
	if l != nil {
		l.SetPosition(pos)
	}
}

func (g *gameObject) Light() light.Light {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attachedLight
}

func (g *gameObject) SetLight(l light.Light) {
	g.mu.Lock()
	g.attachedLight = l
	g.mu.Unlock()
	g.syncLight()
}

func (g *gameObject) Dispose() error {
	if g.disposed.Swap(true) {
		return nil
	}
	return g.cache.DisposeInstance(g.instance)
}
