package model

// model is the implementation of the Model interface.
type model struct {
	name           string
	vertices       []GPUVertex
	indices        []uint32
	boundingRadius float32
}

// Model defines the interface for the mesh data of one drawable model.
// A geometry cache packs the meshes of many models into shared vertex and index buffers
// and draws each model's instances with one instanced call.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the name of the model
	Name() string

	// Vertices retrieves the vertices of the mesh.
	//
	// Returns:
	//   - []GPUVertex: the vertices
	Vertices() []GPUVertex

	// Indices retrieves the triangle indices of the mesh, relative to its first vertex.
	//
	// Returns:
	//   - []uint32: the indices
	Indices() []uint32

	// IndexCount retrieves the number of indices drawn for one instance.
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// BoundingRadius retrieves the radius of a sphere centered on the model origin that encloses
	// every vertex.
	//
	// Returns:
	//   - float32: the bounding radius
	BoundingRadius() float32

	// VertexData serializes the vertices into GPU layout.
	//
	// Returns:
	//   - []byte: len(Vertices())*GPUVertexStride bytes
	VertexData() []byte
}

var _ Model = &model{}

// NewModel creates a new Model configured with the provided options. When no bounding radius is
// given it is computed from the vertices.
//
// Parameters:
//   - options: variadic list of ModelBuilderOption functions to configure the model
//
// Returns:
//   - Model: a new Model instance
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{}
	for _, opt := range options {
		opt(m)
	}
	if m.boundingRadius == 0 {
		m.boundingRadius = ComputeBoundingRadius(m.vertices)
	}
	return m
}

// NewModelFromMesh creates a Model from imported mesh data.
//
// Parameters:
//   - mesh: the mesh to wrap
//
// Returns:
//   - Model: a new Model instance
func NewModelFromMesh(mesh ImportedMesh) Model {
	return NewModel(WithName(mesh.Name), WithVertices(mesh.Vertices), WithIndices(mesh.Indices))
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Vertices() []GPUVertex {
	return m.vertices
}

func (m *model) Indices() []uint32 {
	return m.indices
}

func (m *model) IndexCount() int {
	return len(m.indices)
}

func (m *model) BoundingRadius() float32 {
	return m.boundingRadius
}

func (m *model) VertexData() []byte {
	buf := make([]byte, 0, len(m.vertices)*GPUVertexStride)
	for i := range m.vertices {
		buf = m.vertices[i].AppendTo(buf)
	}
	return buf
}
