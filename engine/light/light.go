package light

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	id uuid.UUID

	mu       sync.Mutex
	position mgl32.Vec3
	radius   float32
	color    mgl32.Vec3
}

// Light defines the interface for a dynamic point light.
//
// A light is a sphere of influence with a color. Lights are owned by the caller and registered
// with the lighting pass, which reads them once per frame; every accessor is safe to call while
// a frame is being rendered.
type Light interface {
	// ID returns the unique identity of the light.
	//
	// Returns:
	//   - uuid.UUID: the light identity
	ID() uuid.UUID

	// Position returns the world-space center of the light.
	//
	// Returns:
	//   - mgl32.Vec3: the light position
	Position() mgl32.Vec3

	// Radius returns the distance beyond which the light contributes nothing.
	//
	// Returns:
	//   - float32: the light radius
	Radius() float32

	// Color returns the linear RGB color of the light.
	//
	// Returns:
	//   - mgl32.Vec3: color as (r, g, b)
	Color() mgl32.Vec3

	// Properties returns a consistent snapshot of position, radius and color in GPU layout.
	//
	// Returns:
	//   - Properties: the packed light
	Properties() Properties

	// SetPosition moves the light.
	//
	// Parameters:
	//   - position: the world-space center
	SetPosition(position mgl32.Vec3)

	// SetRadius sets the light radius.
	//
	// Parameters:
	//   - radius: the radius in world units
	SetRadius(radius float32)

	// SetColor sets the light color.
	//
	// Parameters:
	//   - color: color as (r, g, b)
	SetColor(color mgl32.Vec3)
}

var _ Light = &lightImpl{}

// NewLight creates a white light of radius 1 at the origin, configured with the provided options.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: the configured Light instance
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		id:     uuid.New(),
		radius: 1,
		color:  mgl32.Vec3{1, 1, 1},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) ID() uuid.UUID {
	return l.id
}

func (l *lightImpl) Position() mgl32.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) Radius() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.radius
}

func (l *lightImpl) Color() mgl32.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *lightImpl) Properties() Properties {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Properties{Position: l.position, Radius: l.radius, Color: l.color}
}

func (l *lightImpl) SetPosition(position mgl32.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = position
}

func (l *lightImpl) SetRadius(radius float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.radius = radius
}

func (l *lightImpl) SetColor(color mgl32.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = color
}
