package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ProjectionKind selects how a Camera maps view space into clip space.
type ProjectionKind uint8

const (
	// ProjectionPerspective is a symmetric perspective frustum defined by fov and aspect.
	ProjectionPerspective ProjectionKind = iota
	// ProjectionOrthographic is a box volume defined by its width and height, used by light cameras.
	ProjectionOrthographic
)

type cameraImpl struct {
	mu *sync.Mutex
	id uuid.UUID

	position mgl32.Vec3
	target   mgl32.Vec3
	worldUp  mgl32.Vec3

	kind        ProjectionKind
	fov         float32
	aspect      float32
	orthoWidth  float32
	orthoHeight float32
	near        float32
	far         float32

	forward mgl32.Vec3
	right   mgl32.Vec3
	up      mgl32.Vec3

	viewMatrix           mgl32.Mat4
	projectionMatrix     mgl32.Mat4
	viewProjectionMatrix mgl32.Mat4

	controller CameraController
}

// Camera defines the interface for the camera system.
// The camera holds a position and a look-at target plus its projection settings, and keeps
// the view, projection and view-projection matrices current whenever any of them changes.
// When a CameraController is attached, Update pulls position and target from it.
type Camera interface {
	// ID returns the unique identity of the camera.
	//
	// Returns:
	//   - uuid.UUID: the camera identity
	ID() uuid.UUID

	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Target returns the world-space look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: the target position
	Target() mgl32.Vec3

	// Forward returns the normalized view direction (the camera orientation).
	//
	// Returns:
	//   - mgl32.Vec3: the forward axis
	Forward() mgl32.Vec3

	// Up returns the camera's orthonormal local up axis.
	//
	// Returns:
	//   - mgl32.Vec3: the up axis
	Up() mgl32.Vec3

	// Right returns the camera's orthonormal local right axis, Forward × Up.
	//
	// Returns:
	//   - mgl32.Vec3: the right axis
	Right() mgl32.Vec3

	// Kind returns the projection kind of the camera.
	//
	// Returns:
	//   - ProjectionKind: perspective or orthographic
	Kind() ProjectionKind

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns the current combined projection * view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the combined view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// Frustum extracts the six clip planes of the current view-projection matrix.
	//
	// Returns:
	//   - common.Frustum: the view frustum
	Frustum() common.Frustum

	// Controller returns the attached CameraController, or nil.
	//
	// Returns:
	//   - CameraController: the attached controller or nil
	Controller() CameraController

	// Update reads position and target from the controller and recomputes the matrices.
	// If no controller is attached, this method does nothing.
	Update()

	// LookAt places the camera at position looking towards target.
	//
	// Parameters:
	//   - position: the eye position
	//   - target: the look-at point
	LookAt(position, target mgl32.Vec3)

	// SetUp sets the world up reference vector.
	//
	// Parameters:
	//   - up: the world up vector
	SetUp(up mgl32.Vec3)

	// SetPerspective switches to a perspective projection.
	//
	// Parameters:
	//   - fov: vertical field of view in radians
	//   - aspect: width / height
	SetPerspective(fov, aspect float32)

	// SetOrthographic switches to an orthographic projection centered on the view axis.
	//
	// Parameters:
	//   - width: the view volume width in world units
	//   - height: the view volume height in world units
	SetOrthographic(width, height float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetClipPlanes sets the near and far clipping distances.
	//
	// Parameters:
	//   - near: near plane distance
	//   - far: far plane distance
	SetClipPlanes(near, far float32)

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings, positioned at (0, 0, -1)
// looking at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		id:          uuid.New(),
		position:    mgl32.Vec3{0, 0, -1},
		worldUp:     mgl32.Vec3{0, 1, 0},
		kind:        ProjectionPerspective,
		fov:         45.0 * (math.Pi / 180.0),
		aspect:      1.0,
		orthoWidth:  1.0,
		orthoHeight: 1.0,
		near:        0.1,
		far:         100.0,
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.position = c.controller.Position()
		c.target = c.controller.Target()
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) ID() uuid.UUID {
	return c.id
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Forward() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forward
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Right() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.right
}

func (c *cameraImpl) Kind() ProjectionKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	vp := c.viewProjectionMatrix
	c.mu.Unlock()
	return common.ExtractFrustumFromMatrix(vp)
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.target = c.controller.Target()
	c.updateMatrices()
}

func (c *cameraImpl) LookAt(position, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.worldUp = up
	c.updateMatrices()
}

func (c *cameraImpl) SetPerspective(fov, aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = ProjectionPerspective
	c.fov = fov
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetOrthographic(width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = ProjectionOrthographic
	c.orthoWidth = width
	c.orthoHeight = height
	if height != 0 {
		c.aspect = width / height
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	if c.kind == ProjectionOrthographic {
		c.orthoWidth = c.orthoHeight * aspect
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetClipPlanes(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

// updateMatrices recalculates the local axes and the view, projection and view-projection matrices.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.forward, c.right, c.up = localAxes(c.position, c.target, c.worldUp)

	c.viewMatrix = mgl32.LookAtV(c.position, c.target, c.up)
	switch c.kind {
	case ProjectionOrthographic:
		hw, hh := c.orthoWidth/2, c.orthoHeight/2
		c.projectionMatrix = mgl32.Ortho(-hw, hw, -hh, hh, c.near, c.far)
	default:
		c.projectionMatrix = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
	}
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
}

// localAxes derives an orthonormal basis from an eye, a target and a world up reference.
// When the view direction is parallel to worldUp, an alternative reference axis is used.
// If position and target coincide, forward defaults to +Z.
func localAxes(position, target, worldUp mgl32.Vec3) (forward, right, up mgl32.Vec3) {
	forward = target.Sub(position)
	if forward.Len() < 1e-8 {
		forward = mgl32.Vec3{0, 0, 1}
	}
	forward = forward.Normalize()

	ref := worldUp
	if ref.Len() < 1e-8 || math.Abs(float64(forward.Dot(ref.Normalize()))) > 0.9999 {
		ref = mgl32.Vec3{0, 0, 1}
		if math.Abs(float64(forward.Z())) > 0.9999 {
			ref = mgl32.Vec3{1, 0, 0}
		}
	}

	right = forward.Cross(ref).Normalize()
	up = right.Cross(forward).Normalize()
	return forward, right, up
}
